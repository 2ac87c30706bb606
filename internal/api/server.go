package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/surfersbangs/surfers/internal/artifact"
	"github.com/surfersbangs/surfers/internal/log"
	"github.com/surfersbangs/surfers/internal/publish"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8787"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris-style header dribbling.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout covers the whole request read, sized for multi-megabyte
	// image uploads on slow links.
	ReadTimeout = 60 * time.Second

	// WriteTimeout bounds a whole streamed completion including
	// continuations. Clients give up well before this.
	WriteTimeout = 3 * time.Minute

	// IdleTimeout is the keep-alive limit between requests.
	IdleTimeout = 120 * time.Second
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger        log.Logger
	Runner        Runner            // Required
	Artifacts     *artifact.Store   // Required
	Registry      *publish.Registry // Required
	DataDir       string            // Checked by /ready
	PublicBaseURL string            // Optional absolute URL override for links
	CORSOrigins   []string          // Allowed origins for CORS
	TrustProxy    bool              // Trust X-Forwarded-* headers (behind reverse proxy)
	VisionEnabled bool              // Attach uploaded images as vision parts
	RateRPS       float64           // Rate limiter refill per second (0 = default 5)
	RateBurst     int               // Rate limiter burst size per IP (0 = default 10)
}

// Server is the HTTP server for the surfers backend.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("completion runner is required")
	}
	if cfg.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("publish registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{
		logger: logger,
		runner: cfg.Runner,
		vision: cfg.VisionEnabled,
	}
	ah := &artifactHandler{
		logger:        logger,
		store:         cfg.Artifacts,
		registry:      cfg.Registry,
		publicBaseURL: cfg.PublicBaseURL,
		trustProxy:    cfg.TrustProxy,
	}
	hh := &healthHandler{logger: logger, dataDir: cfg.DataDir}

	mux := http.NewServeMux()

	// Completion endpoints, one per framing
	mux.HandleFunc("POST /api/generate", ch.generate)
	mux.HandleFunc("POST /api/stream", ch.stream)
	mux.HandleFunc("POST /api/stream/sse", ch.streamSSE)
	mux.HandleFunc("POST /api/stream-es", ch.streamES)

	// Artifact lifecycle
	mux.HandleFunc("POST /api/artifacts", ah.build)
	mux.HandleFunc("GET /preview/{id}", ah.preview)
	mux.HandleFunc("GET /preview/{id}/{path...}", ah.preview)
	mux.HandleFunc("POST /api/publish", ah.publishArtifact)
	mux.HandleFunc("GET /live/{slug}", ah.live)
	mux.HandleFunc("GET /live/{slug}/{path...}", ah.live)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes. CORS sits before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.health)
	topMux.HandleFunc("GET /ready", hh.ready)
	topMux.Handle("/", handler)

	return &Server{mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
