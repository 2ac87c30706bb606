package completion

import (
	"github.com/surfersbangs/surfers/internal/upstream"
)

// Prior conversation turns are capped twice: first to a fixed number of
// recent messages, then to a character budget, dropping the oldest first.
// The system prompt is prepended after trimming and never counts against
// either cap.
const (
	maxHistoryMessages = 6
	maxHistoryChars    = 16000
)

// trimHistory returns the suffix of history that fits both caps.
func trimHistory(history []upstream.Message) []upstream.Message {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}

	total := 0
	for _, m := range history {
		total += contentChars(m)
	}
	// The cap is absolute: even a lone oversized message is dropped. The
	// user prompt and system message are appended separately, so an empty
	// trimmed history is fine.
	for len(history) > 0 && total > maxHistoryChars {
		total -= contentChars(history[0])
		history = history[1:]
	}
	return history
}

// contentChars counts the visible text length of a message. Multi-part
// bodies count only their text parts; image parts cost nothing here since
// the cap guards prompt length, not payload size.
func contentChars(m upstream.Message) int {
	switch c := m.Content.(type) {
	case string:
		return len(c)
	case []upstream.ContentPart:
		n := 0
		for _, p := range c {
			n += len(p.Text)
		}
		return n
	case []any:
		// History decoded from JSON lands here.
		n := 0
		for _, raw := range c {
			part, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok {
				n += len(text)
			}
		}
		return n
	default:
		return 0
	}
}
