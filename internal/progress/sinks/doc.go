// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and the run history store.
package sinks
