// Package cmd defines the docketcrawler CLI.
//
// Architecture overview:
//   - serve: internal/api.Server exposes health, metrics, the search form, the JSON search endpoint and the
//     run history endpoints. Every search runs the two-phase pipeline in the request goroutine.
//   - search: runs a single crawl for the query given on the command line and prints the run summary as JSON.
//   - Pipeline: discovery opens one browser per pool slot and pages through each source's search listing;
//     enrichment then visits every detail page through one shared session, bounded by a process-wide
//     admission limiter.
//   - Delivery: CSV files go to the configured blob store (local/GCS/memory), final records optionally to
//     Postgres, and a run summary to Pub/Sub or NATS JetStream when configured. Progress events are batched
//     into log, Prometheus and run history sinks.
//
// Configuration is loaded by Viper from the file named by --config and DOCKET_* environment variables.
package cmd
