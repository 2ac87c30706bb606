// Package publish maintains the slug -> artifact binding that backs the
// public /live URLs.
//
// The registry is one JSON document rewritten whole on every change. A
// process-local mutex serializes the read-modify-write; the deployment runs
// a single process, so no cross-process locking is needed.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/surfersbangs/surfers/internal/log"
)

var (
	// ErrUnknownArtifact is returned when publishing an artifact id that
	// was never built.
	ErrUnknownArtifact = errors.New("publish: unknown artifact")

	// ErrNotFound is returned when resolving a slug with no binding.
	ErrNotFound = errors.New("publish: slug not bound")
)

// ArtifactChecker answers whether an artifact id exists. Satisfied by
// the artifact store.
type ArtifactChecker interface {
	Exists(id string) bool
}

// Registry binds normalized slugs to artifact ids.
type Registry struct {
	path      string
	artifacts ArtifactChecker
	logger    log.Logger

	mu sync.Mutex
}

// NewRegistry creates a Registry persisted at path. The file is created on
// first publish; a missing file reads as an empty registry.
func NewRegistry(path string, artifacts ArtifactChecker, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{path: path, artifacts: artifacts, logger: logger}
}

// Publish binds the normalized form of project to artifactID and returns
// the slug. Re-publishing a slug rebinds it; the previously bound artifact
// stays on disk and remains reachable by its preview URL.
func (r *Registry) Publish(project, artifactID string) (string, error) {
	if !r.artifacts.Exists(artifactID) {
		return "", ErrUnknownArtifact
	}
	slug := NormalizeSlug(project)

	r.mu.Lock()
	defer r.mu.Unlock()

	bindings, err := r.load()
	if err != nil {
		return "", err
	}
	bindings[slug] = artifactID
	if err := r.save(bindings); err != nil {
		return "", err
	}

	r.logger.Info("published artifact", "slug", slug, "artifact_id", artifactID)
	return slug, nil
}

// Resolve returns the artifact id bound to slug, or ErrNotFound. The slug
// is normalized first, so any spelling that maps to the same published
// name hits the same binding.
func (r *Registry) Resolve(slug string) (string, error) {
	slug = NormalizeSlug(slug)

	r.mu.Lock()
	defer r.mu.Unlock()

	bindings, err := r.load()
	if err != nil {
		return "", err
	}
	id, ok := bindings[slug]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (r *Registry) load() (map[string]string, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("publish: read registry: %w", err)
	}
	bindings := map[string]string{}
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("publish: decode registry: %w", err)
	}
	return bindings, nil
}

func (r *Registry) save(bindings map[string]string) error {
	raw, err := json.MarshalIndent(bindings, "", "  ")
	if err != nil {
		return fmt.Errorf("publish: encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("publish: create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("publish: write registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish: write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish: write registry: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish: write registry: %w", err)
	}
	return nil
}
