// Package api provides the JSON REST API and chat SSE server for easel.
//
// # Architecture
//
// The server uses Go 1.22+ method patterns on http.ServeMux with a layered
// middleware stack:
//
//	Recovery → RequestID → Logging → SecurityHeaders → CORS → RateLimit → Routes
//
// Health probes and Prometheus metrics bypass the stack via a top-level
// mux, so they stay fast and unthrottled.
//
// # Endpoints
//
// Probes and metrics (no middleware):
//
//	GET /health   →  liveness, returns {"status":"ok"}
//	GET /ready    →  readiness, pings the database pool
//	GET /metrics  →  Prometheus exposition
//
// Sessions:
//
//	POST   /api/v1/sessions                →  create session
//	GET    /api/v1/sessions                →  list sessions
//	GET    /api/v1/sessions/{id}           →  get session
//	PATCH  /api/v1/sessions/{id}           →  rename session
//	DELETE /api/v1/sessions/{id}           →  delete session and its canvas
//	GET    /api/v1/sessions/{id}/messages  →  list messages
//	GET    /api/v1/sessions/{id}/export    →  export as JSON or Markdown
//
// Chat:
//
//	POST /api/v1/chat  →  stream an assistant reply over SSE
//
// Canvas:
//
//	GET    /api/v1/sessions/{id}/canvas               →  open artifacts
//	POST   /api/v1/sessions/{id}/canvas/active        →  set active artifact
//	POST   /api/v1/sessions/{id}/canvas/minimize      →  toggle minimize
//	DELETE /api/v1/sessions/{id}/canvas/{artifactID}  →  close one artifact
//	DELETE /api/v1/sessions/{id}/canvas               →  close all
//
// # Error Handling
//
// Error responses use an envelope:
//
//	{"error": {"code": "not_found", "message": "session not found"}}
//
// Errors during chat streaming are sent as SSE events (event: error), not
// HTTP error responses, since the SSE headers are already committed.
//
// # SSE Streaming
//
// Chat responses stream via Server-Sent Events with typed events: chunk,
// in_progress, canvas, artifact, done and error. See the stream package
// for the event vocabulary and payloads.
//
// # Security
//
// The middleware stack enforces per-IP rate limiting (token bucket), CORS
// with an explicit origin allowlist, and common security headers. There is
// no authentication layer: easel fronts a local browser UI.
package api
