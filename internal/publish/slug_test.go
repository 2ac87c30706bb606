package publish

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "spaces and punctuation", in: "My Cool App!", want: "my-cool-app"},
		{name: "already normalized", in: "my-cool-app", want: "my-cool-app"},
		{name: "collapses runs", in: "a  --  b", want: "a-b"},
		{name: "trims edge dashes", in: "--edgy--", want: "edgy"},
		{name: "unicode replaced", in: "café ☕ site", want: "caf-site"},
		{name: "uppercase folded", in: "LANDER", want: "lander"},
		{name: "empty falls back", in: "", want: "proj"},
		{name: "symbols only falls back", in: "!!!???", want: "proj"},
		{name: "whitespace only falls back", in: "   ", want: "proj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, NormalizeSlug(tt.in))
		})
	}
}

func TestNormalizeSlugLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 100)
	got := NormalizeSlug(long)
	assert.Len(t, got, maxSlugLen)

	// Truncation must not leave a trailing dash.
	edged := strings.Repeat("ab-", 30)
	got = NormalizeSlug(edged)
	assert.LessOrEqual(t, len(got), maxSlugLen)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestNormalizeSlugIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"My Cool App!", "--x--", strings.Repeat("q-", 50), "Ünïcode Näme"} {
		once := NormalizeSlug(in)
		assert.Equal(t, once, NormalizeSlug(once), "in=%q", in)
	}
}
