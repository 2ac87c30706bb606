// Package stream turns an upstream byte stream of unknown framing into a
// sequence of text deltas plus a completion signal.
//
// Three framings are recognized: plain text, Server-Sent Events, and
// newline-delimited JSON. Classification happens on first contact and never
// switches back once confirmed, except that a raw stream may upgrade to SSE
// when "data:" markers appear later. Reassembly is insensitive to how the
// transport chunks the bytes.
package stream

import "strings"

const (
	doneSentinel  = "[DONE]"
	upgradeMarker = "\n" + sseMarker
)

// Ingestor consumes upstream bytes and emits logical text deltas.
// Not safe for concurrent use; one Ingestor serves one stream.
type Ingestor struct {
	mode      Mode
	buf       string
	done      bool
	finish    string
	lineStart bool
	emit      func(delta string)
}

// NewIngestor creates an Ingestor that forwards every non-empty delta to
// emit, in arrival order.
func NewIngestor(emit func(delta string)) *Ingestor {
	return &Ingestor{lineStart: true, emit: emit}
}

// Write feeds one transport chunk into the ingestor. Chunks received after
// the completion signal are discarded.
func (in *Ingestor) Write(p []byte) {
	if in.done || len(p) == 0 {
		return
	}
	in.buf += string(p)
	in.process(false)
}

// Flush drains any remaining buffered partial line through the same
// JSON-or-raw extraction logic, exactly once. Call at end of stream.
func (in *Ingestor) Flush() {
	if in.done {
		return
	}
	in.process(true)
	in.buf = ""
}

// Done reports whether the stream signaled completion ([DONE] sentinel).
func (in *Ingestor) Done() bool { return in.done }

// FinishReason returns the last finish reason carried by a payload,
// or "" if none arrived.
func (in *Ingestor) FinishReason() string { return in.finish }

// Mode returns the detected framing mode.
func (in *Ingestor) Mode() Mode { return in.mode }

func (in *Ingestor) process(final bool) {
	if in.mode == ModeUnknown {
		in.mode = nextMode(ModeUnknown, in.buf)
		if in.mode == ModeUnknown {
			if final {
				in.consumePayload(in.buf)
				in.buf = ""
			}
			return
		}
	}

	switch in.mode {
	case ModeRaw:
		in.processRaw(final)
	case ModeSSE:
		in.processSSE(final)
	case ModeNDJSON:
		in.processNDJSON(final)
	}
}

// processRaw emits buffered text verbatim, minus [DONE] sentinels. A small
// suffix that could be the start of a split sentinel or SSE marker is held
// back until the next chunk decides it.
func (in *Ingestor) processRaw(final bool) {
	if i := in.upgradeIndex(); i >= 0 {
		// The newline introducing the marker is framing, not content.
		head := strings.TrimSuffix(in.buf[:i], "\n")
		head = strings.TrimSuffix(head, "\r")
		in.emitRaw(head)
		in.buf = in.buf[i:]
		in.mode = ModeSSE
		in.processSSE(final)
		return
	}

	hold := 0
	if !final {
		hold = in.rawHoldback()
	}
	cut := len(in.buf) - hold
	if cut > 0 {
		in.lineStart = in.buf[cut-1] == '\n'
		in.emitRaw(in.buf[:cut])
		in.buf = in.buf[cut:]
	}
}

func (in *Ingestor) emitRaw(s string) {
	in.emitDelta(strings.ReplaceAll(s, doneSentinel, ""))
}

// upgradeIndex returns the byte offset of the first line-initial "data:"
// marker in the buffer, or -1. The buffer start only counts as a line start
// when the last consumed byte was a newline.
func (in *Ingestor) upgradeIndex() int {
	if in.lineStart && strings.HasPrefix(in.buf, sseMarker) {
		return 0
	}
	if i := strings.Index(in.buf, upgradeMarker); i >= 0 {
		return i + 1
	}
	return -1
}

// rawHoldback returns the length of the longest buffer suffix that could
// still grow into a [DONE] sentinel or a line-initial "data:" marker once
// more bytes arrive.
func (in *Ingestor) rawHoldback() int {
	s := in.buf
	max := len(doneSentinel) - 1
	if len(s) < max {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		suffix := s[len(s)-k:]
		if strings.HasPrefix(doneSentinel, suffix) {
			return k
		}
		if strings.HasPrefix(upgradeMarker, suffix) {
			return k
		}
		if in.lineStart && k == len(s) && strings.HasPrefix(sseMarker, suffix) {
			return k
		}
	}
	return 0
}

// processSSE splits the buffer on blank-line event boundaries and handles
// each complete event. At end of stream a trailing partial event is handled
// once.
func (in *Ingestor) processSSE(final bool) {
	for !in.done {
		i := strings.Index(in.buf, "\n\n")
		if i < 0 {
			break
		}
		event := in.buf[:i]
		in.buf = in.buf[i+2:]
		in.handleSSEEvent(event)
	}
	if in.done {
		in.buf = ""
		return
	}
	if final && in.buf != "" {
		in.handleSSEEvent(in.buf)
		in.buf = ""
	}
}

func (in *Ingestor) handleSSEEvent(event string) {
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, sseMarker) {
			continue
		}
		payload := strings.TrimPrefix(line[len(sseMarker):], " ")
		if strings.TrimSpace(payload) == doneSentinel {
			in.done = true
			return
		}
		in.consumePayload(payload)
	}
}

// processNDJSON handles each complete line as a JSON payload; the incomplete
// trailing line is re-buffered for the next chunk.
func (in *Ingestor) processNDJSON(final bool) {
	for !in.done {
		i := strings.Index(in.buf, "\n")
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(in.buf[:i], "\r")
		in.buf = in.buf[i+1:]
		if strings.TrimSpace(line) == doneSentinel {
			in.done = true
			in.buf = ""
			return
		}
		in.consumePayload(line)
	}
	if in.done {
		return
	}
	if final && strings.TrimSpace(in.buf) != "" {
		in.consumePayload(in.buf)
		in.buf = ""
	}
}

// consumePayload applies the extractor chain to one payload. Malformed JSON
// is emitted as raw text rather than dropped: lossy-but-visible beats
// silent loss.
func (in *Ingestor) consumePayload(payload string) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return
	}
	if !jsonValid(trimmed) {
		in.emitDelta(payload)
		return
	}

	delta, matched := extractDelta(trimmed)
	if fr := extractFinishReason(trimmed); fr != "" {
		in.finish = fr
	}

	switch {
	case delta != "":
		in.emitDelta(delta)
	case !matched && in.finishAbsent(trimmed):
		in.emitDelta(payload)
	}
}

func (in *Ingestor) finishAbsent(payload string) bool {
	return extractFinishReason(payload) == ""
}

func (in *Ingestor) emitDelta(s string) {
	if s == "" {
		return
	}
	in.emit(s)
}
