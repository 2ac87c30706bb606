package stream

import "github.com/tidwall/gjson"

// Providers disagree about where the incremental text lives in a JSON
// payload. extractors is the ordered list of candidate locations; the first
// non-empty match wins. Kept explicit so it is unit-testable apart from the
// byte-consumption loop.
var extractors = []func(gjson.Result) gjson.Result{
	func(r gjson.Result) gjson.Result { return r.Get("delta") },
	func(r gjson.Result) gjson.Result { return r.Get("text") },
	func(r gjson.Result) gjson.Result { return r.Get("content") },
	func(r gjson.Result) gjson.Result { return r.Get("choices.0.delta.content") },
	func(r gjson.Result) gjson.Result { return r.Get("choices.0.text") },
}

// finishPaths are the locations a terminal finish reason may occupy.
var finishPaths = []string{"choices.0.finish_reason", "finish_reason"}

func jsonValid(payload string) bool {
	return gjson.Valid(payload)
}

// extractDelta pulls the delta text out of a JSON payload. matched reports
// whether any candidate field was present at all, even empty, so the caller
// can tell "known shape, no text yet" apart from an unrecognized payload.
func extractDelta(payload string) (delta string, matched bool) {
	root := gjson.Parse(payload)
	for _, ex := range extractors {
		v := ex(root)
		if !v.Exists() {
			continue
		}
		matched = true
		if s := v.String(); s != "" {
			return s, true
		}
	}
	return "", matched
}

// extractFinishReason pulls a non-null finish reason out of a JSON payload,
// or "" when absent.
func extractFinishReason(payload string) string {
	root := gjson.Parse(payload)
	for _, path := range finishPaths {
		if v := root.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
