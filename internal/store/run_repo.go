// Package store declares interfaces for persisting run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one search over every configured source.
type Run struct {
	ID    uuid.UUID
	Query string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	Status     RunStatus
	// Records is the number of final records produced.
	Records int64
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SourceStats aggregates one source's share of a run.
type SourceStats struct {
	RunID      uuid.UUID
	Source     string
	LastUpdate time.Time
	// Discovered counts listing records found on the source.
	Discovered int64
	// Pages counts listing pages read.
	Pages int64
	// Enriched counts detail pages read successfully.
	Enriched int64
	// Failed counts detail pages that could not be loaded.
	Failed int64
	// Error is the discovery failure, if any.
	Error *string
}

// SourceDelta is an increment applied to a run's source row.
type SourceDelta struct {
	Discovered int64
	Pages      int64
	Enriched   int64
	Failed     int64
	Error      string
}

// RunRepository persists run lifecycle and per-source counters.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, query string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, records int64, errMsg *string) error
	// UpsertSourceStats applies deltas to the (run, source) row.
	UpsertSourceStats(ctx context.Context, runID uuid.UUID, source string, delta SourceDelta, at time.Time) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSources returns per-source stats for one run.
	ListRunSources(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SourceStats, error)
}
