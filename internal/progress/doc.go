// Package progress carries run milestones from the pipeline to pluggable
// sinks. Emitters never block: events are buffered, batched on a background
// goroutine and fanned out to sinks such as structured logs, Prometheus
// collectors or the run history store.
package progress
