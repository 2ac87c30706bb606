// Package api provides the HTTP surface of the surfers backend.
//
//	POST /api/generate        → full completion as one JSON reply
//	POST /api/stream          → raw chunked text, terminated by [DONE]
//	POST /api/stream/sse      → Server-Sent Events framing
//	POST /api/stream-es       → multipart form (prompt + images), raw framing
//	POST /api/artifacts       → build a preview artifact from generated code
//	GET  /preview/{id}/{path} → serve a stored artifact
//	POST /api/publish         → bind a slug to an artifact
//	GET  /live/{slug}/{path}  → serve a published artifact
//	GET  /health, /ready      → probes
//
// File structure:
//   - server.go: route registration, middleware stack, server lifecycle
//   - middleware.go: recovery, request id, logging, CORS
//   - ratelimit.go: per-IP token bucket
//   - chat.go: completion endpoints (all framings)
//   - artifacts.go: preview/publish endpoints
//   - health.go: probes
//   - response.go: JSON response helpers
package api
