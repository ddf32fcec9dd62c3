// Package cmd hosts the jobradar CLI.
//
// Architecture overview:
//   - Crawl pipeline: the crawl controller shuffles the selected boards and
//     walks their result pages, fetching through the resilient fetch client
//     (retry ladder, rotating browser identities, synthetic session cookies)
//     while the per-site limiter paces requests and backs off after refusals.
//     Extracted cards become job records, thin descriptions are enriched from
//     posting pages, and the run's records are deduplicated before delivery.
//   - Delivery: finished runs are written as timestamped JSON/CSV files,
//     upserted into Postgres when a DSN is configured, and optionally POSTed
//     to a downstream API as a JSON array. Delivery failures log and move on.
//   - Progress events: the controller emits run/fetch/page milestones into a
//     buffered hub that fans batches out to the zap log sink, Prometheus
//     collectors, and the run-history store.
//   - Status server: 'serve' exposes health probes, /metrics, persisted run
//     history, live per-board pacing state, and the current run snapshot; it
//     can also crawl in the background on an interval.
//   - Configuration & plumbing: Viper populates config from jobradar.yaml and
//     JOBRADAR_* env vars; boards are selector descriptors loadable from
//     config so a new board needs no code change; zap provides structured
//     logging throughout.
//
// Operational notes:
//   - Concurrency model: one goroutine per board bounded by the workers
//     setting; sequential mode spaces boards out with a long randomized
//     delay. Every sleep honors context cancellation, so SIGINT drains
//     cleanly mid-crawl.
//   - Pacing: each board has a base delay that doubles (plus jitter) while
//     refusals accumulate and resets after a streak of successes. 429s and
//     403/blocked responses also trigger long waits inside the retry ladder.
//   - Observability: zap logs carry run IDs and board names; Prometheus
//     counters track fetch outcomes, extracted records, duplicates, and
//     worker activity; the event hub mirrors run lifecycle into the store.
//
// Quick checklist:
//   - Run once: jobradar crawl --title "data engineer" --location remote
//   - Keep crawling: add --interval 45m, or run jobradar serve --title ...
//   - Persist history: set --postgres or JOBRADAR_POSTGRES_DSN.
//   - Inspect boards: jobradar sites.
package cmd
