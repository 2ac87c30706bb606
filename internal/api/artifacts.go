package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/surfersbangs/surfers/internal/artifact"
	"github.com/surfersbangs/surfers/internal/log"
	"github.com/surfersbangs/surfers/internal/publish"
)

type artifactHandler struct {
	logger        log.Logger
	store         *artifact.Store
	registry      *publish.Registry
	publicBaseURL string
	trustProxy    bool
}

type buildRequest struct {
	Code       string `json:"code"`
	Lang       string `json:"lang"`
	ArtifactID string `json:"artifactId"`
}

type buildResponse struct {
	ArtifactID string `json:"artifactId"`
	PreviewURL string `json:"previewUrl"`
}

// build handles POST /api/artifacts: persist generated code as a
// previewable document.
func (h *artifactHandler) build(w http.ResponseWriter, r *http.Request) {
	var body buildRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code must not be empty", h.logger)
		return
	}

	id, err := h.store.Build(body.Code, body.Lang, body.ArtifactID)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed artifact id", h.logger)
			return
		}
		h.logger.Error("artifact build failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to persist artifact", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, buildResponse{
		ArtifactID: id,
		PreviewURL: h.baseURL(r) + "/preview/" + id + "/",
	}, h.logger)
}

// preview handles GET /preview/{id}/{path...}.
func (h *artifactHandler) preview(w http.ResponseWriter, r *http.Request) {
	dir, err := h.store.Dir(r.PathValue("id"))
	switch {
	case errors.Is(err, artifact.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed artifact id", h.logger)
		return
	case errors.Is(err, artifact.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "unknown artifact", h.logger)
		return
	case err != nil:
		h.logger.Error("artifact lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to read artifact", h.logger)
		return
	}

	h.serveFrom(w, r, dir, r.PathValue("path"))
}

type publishRequest struct {
	Project    string `json:"project"`
	ArtifactID string `json:"artifactId"`
}

type publishResponse struct {
	Project    string `json:"project"`
	ArtifactID string `json:"artifactId"`
	LiveURL    string `json:"liveUrl"`
}

// publishArtifact handles POST /api/publish: bind a slug to an artifact.
func (h *artifactHandler) publishArtifact(w http.ResponseWriter, r *http.Request) {
	var body publishRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}

	slug, err := h.registry.Publish(body.Project, body.ArtifactID)
	if err != nil {
		if errors.Is(err, publish.ErrUnknownArtifact) {
			writeError(w, http.StatusBadRequest, "unknown_artifact", "artifact has not been built", h.logger)
			return
		}
		h.logger.Error("publish failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to update registry", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, publishResponse{
		Project:    slug,
		ArtifactID: body.ArtifactID,
		LiveURL:    h.baseURL(r) + "/live/" + slug + "/",
	}, h.logger)
}

// live handles GET /live/{slug}/{path...}: resolve the slug, then serve the
// bound artifact.
func (h *artifactHandler) live(w http.ResponseWriter, r *http.Request) {
	id, err := h.registry.Resolve(r.PathValue("slug"))
	if err != nil {
		if errors.Is(err, publish.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "nothing published under this name", h.logger)
			return
		}
		h.logger.Error("slug resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to read registry", h.logger)
		return
	}

	dir, err := h.store.Dir(id)
	if err != nil {
		// Registry points at an artifact that vanished from disk.
		h.logger.Error("published artifact missing", "artifact_id", id, "error", err)
		writeError(w, http.StatusNotFound, "not_found", "published artifact is gone", h.logger)
		return
	}

	h.serveFrom(w, r, dir, r.PathValue("path"))
}

// serveFrom serves one file from an artifact directory. The Clean of a
// rooted path keeps requests inside dir. ServeContent instead of ServeFile
// avoids the canonical redirect on explicit /index.html requests.
func (h *artifactHandler) serveFrom(w http.ResponseWriter, r *http.Request, dir, reqPath string) {
	if reqPath == "" {
		reqPath = "index.html"
	}
	clean := path.Clean("/" + reqPath)

	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(clean)))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no such file in artifact", h.logger)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "no such file in artifact", h.logger)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// baseURL computes the absolute URL prefix for links handed back to the
// client. An explicit public_base_url wins; otherwise the request's own
// host is used, honoring forwarded headers only behind a trusted proxy.
func (h *artifactHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return strings.TrimRight(h.publicBaseURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if h.trustProxy {
		if v := r.Header.Get("X-Forwarded-Proto"); v != "" {
			scheme = v
		}
		if v := r.Header.Get("X-Forwarded-Host"); v != "" {
			host = v
		}
	}
	return scheme + "://" + host
}
