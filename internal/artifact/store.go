package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/surfersbangs/surfers/internal/log"
)

// Store manages artifact persistence on the local filesystem.
//
// Layout: {root}/{id}/index.html. The id doubles as the URL path segment
// for preview serving.
type Store struct {
	root   string
	logger log.Logger
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create store root: %w", err)
	}
	return &Store{root: dir, logger: logger}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// Build renders code into a complete document and persists it under id,
// returning the id. An empty id means mint a fresh one; a caller-supplied
// id overwrites that artifact in place, which is how iterative regeneration
// keeps a stable preview URL.
func (s *Store) Build(code, lang, id string) (string, error) {
	if id == "" {
		fresh, err := NewID()
		if err != nil {
			return "", err
		}
		id = fresh
	} else if err := ValidateID(id); err != nil {
		return "", err
	}

	doc := renderDocument(code, lang)

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create dir for %s: %w", id, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "index.html"), []byte(doc)); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", id, err)
	}

	s.logger.Debug("built artifact", "id", id, "bytes", len(doc), "lang", lang)
	return id, nil
}

// Exists reports whether an artifact with this id has been built.
func (s *Store) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, id, "index.html"))
	return err == nil
}

// Dir returns the directory holding the artifact's files. Returns
// ErrInvalidID for malformed ids and ErrNotFound for unknown ones.
func (s *Store) Dir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return "", ErrNotFound
	}
	return dir, nil
}

// writeFileAtomic writes via a temp file in the same directory plus rename,
// so readers never see a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
