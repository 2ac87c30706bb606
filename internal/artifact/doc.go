// Package artifact persists generated single-page apps on the local
// filesystem for iframe preview.
//
// Each artifact is one directory named by a random 16-hex-char id holding an
// index.html. Generated code that is not already a full HTML document is
// wrapped in a minimal shell, and every document gets a small postMessage
// bridge so the hosting page can observe load and runtime errors.
//
// Writes are atomic (temp file + rename), so a rebuild under the same id
// never exposes a half-written document to a concurrent reader.
package artifact
