// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET / and POST /search for the HTML search form.
//   - POST /v1/search for JSON clients.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/sources for run
//     history via the store.RunRepository interface.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
