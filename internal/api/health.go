package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/surfersbangs/surfers/internal/log"
)

type healthHandler struct {
	logger  log.Logger
	dataDir string
}

// health is the liveness probe: the process is up and serving.
func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, h.logger)
}

// ready is the readiness probe: artifacts and the registry must be
// writable before this instance should take traffic.
func (h *healthHandler) ready(w http.ResponseWriter, _ *http.Request) {
	probe := filepath.Join(h.dataDir, ".ready-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		h.logger.Error("readiness probe failed", "error", err, "data_dir", h.dataDir)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "data directory is not writable", h.logger)
		return
	}
	_ = os.Remove(probe)

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, h.logger)
}
