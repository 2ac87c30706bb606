package publish

import (
	"regexp"
	"strings"
)

const (
	maxSlugLen   = 64
	fallbackSlug = "proj"
)

var (
	invalidSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
	dashRuns         = regexp.MustCompile(`-{2,}`)
)

// NormalizeSlug maps an arbitrary project name onto the published URL
// namespace: lowercase, only [a-z0-9-], no dash runs or edge dashes, at
// most 64 chars, never empty. Idempotent, so an already-normalized slug
// passes through unchanged.
func NormalizeSlug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = invalidSlugChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	if s == "" {
		return fallbackSlug
	}
	return s
}
