package publish

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeArtifacts treats a fixed set of ids as built.
type fakeArtifacts map[string]bool

func (f fakeArtifacts) Exists(id string) bool { return f[id] }

func newTestRegistry(t *testing.T, known ...string) *Registry {
	t.Helper()
	artifacts := fakeArtifacts{}
	for _, id := range known {
		artifacts[id] = true
	}
	return NewRegistry(filepath.Join(t.TempDir(), "published.json"), artifacts, nil)
}

func TestPublishAndResolve(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "0123456789abcdef")

	slug, err := r.Publish("My Cool App!", "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "my-cool-app", slug)

	id, err := r.Resolve("my-cool-app")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", id)
}

func TestResolveNormalizesSlug(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "0123456789abcdef")

	_, err := r.Publish("My Cool App", "0123456789abcdef")
	require.NoError(t, err)

	// Any spelling that normalizes to the published name resolves.
	for _, slug := range []string{"My-Cool-App", "my cool app", "MY COOL APP!"} {
		id, err := r.Resolve(slug)
		require.NoError(t, err, slug)
		assert.Equal(t, "0123456789abcdef", id, slug)
	}
}

func TestPublishUnknownArtifact(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Publish("site", "ffffffffffffffff")
	assert.ErrorIs(t, err, ErrUnknownArtifact)
}

func TestPublishRebinds(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb")

	_, err := r.Publish("site", "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	_, err = r.Publish("site", "bbbbbbbbbbbbbbbb")
	require.NoError(t, err)

	id, err := r.Resolve("site")
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbbbbbbb", id)
}

func TestResolveUnknownSlug(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Resolve("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryPersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "published.json")
	artifacts := fakeArtifacts{"aaaaaaaaaaaaaaaa": true}

	r1 := NewRegistry(path, artifacts, nil)
	_, err := r1.Publish("site", "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)

	r2 := NewRegistry(path, artifacts, nil)
	id, err := r2.Resolve("site")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaa", id)
}

func TestRegistryFileShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "published.json")
	r := NewRegistry(path, fakeArtifacts{"aaaaaaaaaaaaaaaa": true}, nil)

	_, err := r.Publish("one", "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var bindings map[string]string
	require.NoError(t, json.Unmarshal(raw, &bindings))
	assert.Equal(t, map[string]string{"one": "aaaaaaaaaaaaaaaa"}, bindings)
}

func TestRegistryCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "published.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	r := NewRegistry(path, fakeArtifacts{"aaaaaaaaaaaaaaaa": true}, nil)
	_, err := r.Resolve("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode registry")

	_, err = r.Publish("x", "aaaaaaaaaaaaaaaa")
	require.Error(t, err)
}

func TestRegistryConcurrentPublish(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "aaaaaaaaaaaaaaaa")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Publish("contended", "aaaaaaaaaaaaaaaa")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	id, err := r.Resolve("contended")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaa", id)
}
