// Package api hosts the HTTP server, middleware, and REST handlers the chat
// gateway talks to. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/fixtures?team= for subscribers (caller identified by X-User-ID).
//   - /v1/users/{user_id}/... for registration, subscription status,
//     checkout and feedback.
//   - GET /v1/admin/users lists every subscriber; mounted only with an API key.
package api
