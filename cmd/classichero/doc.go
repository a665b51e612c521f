// Package main hosts the classichero entrypoint.
//
// Architecture overview:
//   - Collection: `classichero collect` walks the configured heroes and their books one at a time. For each book the
//     Gutenberg client (colly fetcher with retry and backoff) fetches Gutendex metadata and the plain-text edition, the
//     cleaner strips distribution boilerplate, the splitter detects chapters, and the generator assembles and
//     validates the served record. A failing book is recorded with its stage and the run continues.
//   - Artifacts: collected_books.json and logs/quality_report.json are written through the configured BlobStore
//     (local/memory/GCS); raw downloads are archived under raw/ when storage.keep_raw is set. Books are also upserted
//     into Postgres when db.dsn is configured.
//   - Progress: every stage transition is emitted to a non-blocking hub that batches events to a debug log, Prometheus
//     collectors and a JSON Lines journal under logs/progress/; terminal events are also published to Pub/Sub when
//     notify.pubsub_topic is set. Gutenberg requests are paced per host by a token bucket.
//   - Search: `classichero search AUTHOR` lists Gutendex books by author to help pick book ids.
//   - Dataset: `classichero merge` folds the collected file into the served dataset, keeping a backup copy.
//   - Catalog: `classichero serve` exposes the books and their chapters over a chi router, backed by Postgres or by
//     the dataset file loaded into memory.
//   - Configuration & plumbing: Viper populates config from file and CLASSICHERO_* env vars; zap provides structured
//     logging; Prometheus metrics are exported at /metrics by the catalog server.
//
// Exit status for collect: 0 all books collected, 2 partial, 1 none collected or a run-level failure, 130 interrupted.
package main
