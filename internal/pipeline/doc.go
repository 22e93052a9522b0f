// Package pipeline runs one crawl end to end: query validation, discovery
// across the configured sources, concurrent detail enrichment, aggregation,
// and the optional export, persistence and notification of the result.
//
// A Runner is safe for concurrent use. Runs share the admission limiter, so
// the cap on open detail pages holds across every run in the process.
package pipeline
