package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func readArtifact(t *testing.T, s *Store, id string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(s.Root(), id, "index.html"))
	require.NoError(t, err)
	return string(raw)
}

func TestNewID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 32 {
		id, err := NewID()
		require.NoError(t, err)
		assert.NoError(t, ValidateID(id))
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}

func TestValidateID(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateID("0123456789abcdef"))
	assert.ErrorIs(t, ValidateID(""), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("0123456789ABCDEF"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("0123456789abcde"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("0123456789abcdef0"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("../../../etc/pwd"), ErrInvalidID)
}

func TestBuildMintsID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id, err := s.Build("<h1>hi</h1>", "html", "")
	require.NoError(t, err)
	require.NoError(t, ValidateID(id))
	assert.True(t, s.Exists(id))

	dir, err := s.Dir(id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), id), dir)
}

func TestBuildMarkupGetsShellAndBridge(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id, err := s.Build("<h1>hi</h1>", "html", "")
	require.NoError(t, err)

	doc := readArtifact(t, s, id)
	assert.True(t, strings.HasPrefix(doc, "<!doctype html>"))
	assert.Contains(t, doc, "<h1>hi</h1>")
	assert.NotContains(t, doc, `<script type="module">`, "markup must not be wrapped in a script")
	assert.Contains(t, doc, "artifact:ready")
	assert.Contains(t, doc, "artifact:error")
	// Bridge sits inside the body.
	assert.Less(t, strings.Index(doc, "artifact:ready"), strings.Index(doc, "</body>"))
}

func TestBuildScriptGetsModuleWrapper(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id, err := s.Build("console.log('hi')", "js", "")
	require.NoError(t, err)

	doc := readArtifact(t, s, id)
	assert.Contains(t, doc, `<script type="module">`)
	assert.Contains(t, doc, "console.log('hi')")
	assert.Contains(t, doc, `<div id="root"></div>`)
}

func TestBuildFullDocumentKeptVerbatim(t *testing.T) {
	t.Parallel()

	full := "<!DOCTYPE html>\n<html><head><title>x</title></head><body><p>ok</p></body></html>"

	s := newTestStore(t)
	id, err := s.Build(full, "", "")
	require.NoError(t, err)

	doc := readArtifact(t, s, id)
	assert.Contains(t, doc, "<p>ok</p>")
	assert.NotContains(t, doc, shellTemplate[:20], "full documents must not be re-wrapped")
	assert.Contains(t, doc, "artifact:ready")
}

func TestBuildRebuildIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id, err := s.Build("<h1>v1</h1>", "html", "")
	require.NoError(t, err)
	first := readArtifact(t, s, id)

	got, err := s.Build("<h1>v1</h1>", "html", id)
	require.NoError(t, err)
	assert.Equal(t, id, got, "rebuild keeps the id")
	assert.Equal(t, first, readArtifact(t, s, id), "identical input yields identical bytes")
}

func TestBuildOverwritesInPlace(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id, err := s.Build("<h1>v1</h1>", "html", "")
	require.NoError(t, err)

	_, err = s.Build("<h1>v2</h1>", "html", id)
	require.NoError(t, err)

	doc := readArtifact(t, s, id)
	assert.Contains(t, doc, "v2")
	assert.NotContains(t, doc, "v1")

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(s.Root(), id))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.html", entries[0].Name())
}

func TestBuildRejectsBadID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Build("<h1>hi</h1>", "html", "not-a-valid-id")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDirErrors(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.Dir("BAD")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.Dir("0123456789abcdef")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.False(t, s.Exists("0123456789abcdef"))
	assert.False(t, s.Exists("BAD"))
}

func TestRenderDocumentDeterministic(t *testing.T) {
	t.Parallel()

	a := renderDocument("const x = 1;", "js")
	b := renderDocument("const x = 1;", "js")
	assert.Equal(t, a, b)
}

func TestLooksLikeMarkup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		lang string
		want bool
	}{
		{name: "html lang", code: "anything", lang: "html", want: true},
		{name: "js lang wins over angle bracket", code: "<h1>no</h1>", lang: "js", want: false},
		{name: "no lang angle bracket", code: "  <section>x</section>", lang: "", want: true},
		{name: "no lang plain code", code: "const x = 1;", lang: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, looksLikeMarkup(tt.code, tt.lang))
		})
	}
}
