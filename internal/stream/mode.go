package stream

import "strings"

// Mode identifies the framing convention of an upstream byte stream.
type Mode int

const (
	// ModeUnknown means not enough bytes have arrived to classify the stream.
	ModeUnknown Mode = iota

	// ModeRaw is plain text: bytes are deltas, modulo [DONE] sentinels.
	ModeRaw

	// ModeSSE is Server-Sent-Events framing: "data:" lines in blank-line
	// separated events.
	ModeSSE

	// ModeNDJSON is newline-delimited JSON, one object per line.
	ModeNDJSON
)

// String implements fmt.Stringer for log output.
func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeSSE:
		return "sse"
	case ModeNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

const sseMarker = "data:"

// nextMode is the pure transition function of the framing detector.
//
// SSE and NDJSON are sticky: once confirmed the stream never switches back.
// Raw may upgrade to SSE if a "data:" line shows up later, which tolerates
// transports that emit a few raw bytes before the provider's eventing kicks
// in. Unknown holds until the buffered prefix is unambiguous.
func nextMode(cur Mode, buffered string) Mode {
	switch cur {
	case ModeSSE, ModeNDJSON:
		return cur
	case ModeRaw:
		if hasSSEMarker(buffered) {
			return ModeSSE
		}
		return ModeRaw
	}

	trimmed := strings.TrimLeft(buffered, " \t\r\n")
	if trimmed == "" {
		return ModeUnknown
	}
	if strings.HasPrefix(trimmed, sseMarker) {
		return ModeSSE
	}
	// A short prefix of "data:" could still become an SSE marker; wait.
	if len(trimmed) < len(sseMarker) && strings.HasPrefix(sseMarker, trimmed) {
		return ModeUnknown
	}
	if strings.HasPrefix(trimmed, "{") {
		return ModeNDJSON
	}
	return ModeRaw
}

// hasSSEMarker reports whether buffered contains a "data:" token at the
// start of a line.
func hasSSEMarker(buffered string) bool {
	return strings.HasPrefix(buffered, sseMarker) ||
		strings.Contains(buffered, "\n"+sseMarker)
}
