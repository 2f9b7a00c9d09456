// Package main hosts the lflbot entrypoint.
//
// Architecture overview:
//   - Fixture pipeline: internal/fixtures resolves a free-text team name through the league site's search page,
//     then fetches every matching club's calendar page concurrently through one shared colly fetcher and decodes the
//     embedded hydration JSON into at most two upcoming fixtures per club. Per-team failures are skipped, never
//     surfaced as errors.
//   - HTTP API: internal/api.Server exposes health, metrics, the subscriber-only fixtures query, and the user
//     registration, subscription, checkout and feedback endpoints the chat gateway calls.
//   - Payments: checkout creates a YooKassa payment and queues a watch item on a bounded in-memory queue. A fixed
//     worker pool polls payment status with a growing, jittered delay and activates the subscription on success.
//   - Configuration & plumbing: Viper populates config from env/files (LFLBOT_ prefix); zap provides structured
//     logging; Prometheus metrics are exported on /metrics.
//
// Quick checklist:
//   - Run locally: go run ./cmd/lflbot serve --config config.yaml (or rely solely on env overrides).
//   - One-off lookup: go run ./cmd/lflbot fixtures "Динамо".
//   - Persistence: LFLBOT_DB_DRIVER=postgres with LFLBOT_DB_DSN; the users table is created on startup.
package main
