package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// idBytes yields 16 lowercase hex characters, enough entropy that preview
// URLs are not guessable.
const idBytes = 8

var idPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// NewID generates a random artifact id.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("artifact: generate id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateID checks that id has the expected shape. Returns ErrInvalidID
// otherwise. Since ids double as directory names, this is also the path
// traversal guard.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}
