package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]store.Run
	sources map[uuid.UUID]map[string]*store.SourceStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[uuid.UUID]store.Run),
		sources: make(map[uuid.UUID]map[string]*store.SourceStats),
	}
}

// UpsertRunStart records a running run. Repeated calls keep the first start.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, query string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = store.Run{ID: runID, Query: query, StartedAt: startedAt, Status: store.RunRunning}
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	records int64,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.Records = records
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// UpsertSourceStats adds delta to the (run, source) row.
func (s *RunStore) UpsertSourceStats(_ context.Context, runID uuid.UUID, source string, delta store.SourceDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource := s.sources[runID]
	if bySource == nil {
		bySource = make(map[string]*store.SourceStats)
		s.sources[runID] = bySource
	}
	row := bySource[source]
	if row == nil {
		row = &store.SourceStats{RunID: runID, Source: source}
		bySource[source] = row
	}
	row.Discovered += delta.Discovered
	row.Pages += delta.Pages
	row.Enriched += delta.Enriched
	row.Failed += delta.Failed
	if delta.Error != "" {
		msg := delta.Error
		row.Error = &msg
	}
	if at.After(row.LastUpdate) {
		row.LastUpdate = at
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, limit, offset), nil
}

// ListRunSources returns a run's source rows ordered by source tag.
func (s *RunStore) ListRunSources(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.SourceStats, error) {
	s.mu.RLock()
	out := make([]store.SourceStats, 0, len(s.sources[runID]))
	for _, row := range s.sources[runID] {
		out = append(out, *row)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return page(out, limit, offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
