// Package api hosts the read-only catalog server over the book store.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/books, optionally filtered with ?difficulty=easy|medium|hard.
//   - GET /v1/books/{book_id} with its chapters in served form.
//   - GET /v1/books/{book_id}/chapters[/{chapter_number}].
package api
