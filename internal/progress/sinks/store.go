package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/progress"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

// StoreSink persists run lifecycle and per-source counters through a
// store.RunRepository. Detail completions are collapsed per source before
// they are written.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes lifecycle events in order and flushes collapsed source
// deltas before any run is completed.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[sourceKey]*pendingDelta)
	var order []sourceKey

	flush := func() error {
		for _, key := range order {
			d := pending[key]
			if err := s.repo.UpsertSourceStats(ctx, key.runID, key.source, d.delta, d.at); err != nil {
				return fmt.Errorf("upsert source stats: %w", err)
			}
		}
		pending = make(map[sourceKey]*pendingDelta)
		order = order[:0]
		return nil
	}

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, evt.RunID, evt.Query, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageSourceDone, progress.StageDetailDone:
			key := sourceKey{runID: evt.RunID, source: evt.Source}
			d := pending[key]
			if d == nil {
				d = &pendingDelta{}
				pending[key] = d
				order = append(order, key)
			}
			d.add(evt)
		case progress.StageRunDone, progress.StageRunError:
			if err := flush(); err != nil {
				return err
			}
			if err := s.completeRun(ctx, evt); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (s *StoreSink) completeRun(ctx context.Context, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		if evt.Note != "" {
			n := evt.Note
			note = &n
		}
	}
	if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, evt.Records, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type sourceKey struct {
	runID  uuid.UUID
	source string
}

type pendingDelta struct {
	delta store.SourceDelta
	at    time.Time
}

func (p *pendingDelta) add(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSourceDone:
		p.delta.Discovered += evt.Records
		p.delta.Pages += evt.Pages
		if evt.Note != "" {
			p.delta.Error = evt.Note
		}
	case progress.StageDetailDone:
		if evt.Outcome == progress.OutcomeFailed {
			p.delta.Failed++
		} else {
			p.delta.Enriched++
		}
	}
	if evt.TS.After(p.at) {
		p.at = evt.TS
	}
}
