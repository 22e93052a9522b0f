package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/admission"
	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Result pairs a light record with its enrichment.
type Result struct {
	Light  crawler.LightRecord
	Detail crawler.DetailRecord
	Report Report
}

// ProgressFunc is told how many of total records are finished and which one
// just finished. Calls are serialized and completed increases by one each time.
type ProgressFunc func(completed, total int, res Result)

// Scheduler enriches many records at once behind an admission limiter.
type Scheduler struct {
	enricher *Enricher
	limiter  *admission.Limiter
	logger   *zap.Logger
}

// NewScheduler builds a Scheduler.
func NewScheduler(enricher *Enricher, limiter *admission.Limiter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{enricher: enricher, limiter: limiter, logger: logger.Named("scheduler")}
}

// Run enriches every record and returns exactly one Result per input, in
// input order. Each record holds an admission slot from before its page is
// opened until after it is closed. Records that never get a slot because ctx
// ended come back as sentinel records with a Failure.
func (s *Scheduler) Run(ctx context.Context, session crawler.Session, lights []crawler.LightRecord, onProgress ProgressFunc) []Result {
	results := make([]Result, len(lights))
	total := len(lights)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for i, light := range lights {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res := s.one(ctx, session, light)
			res.Report.Duration = time.Since(start)
			results[i] = res

			mu.Lock()
			defer mu.Unlock()
			completed++
			if onProgress != nil {
				onProgress(completed, total, res)
			}
		}()
	}
	wg.Wait()
	return results
}

func (s *Scheduler) one(ctx context.Context, session crawler.Session, light crawler.LightRecord) Result {
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		s.logger.Warn("detail not scheduled", zap.String("link", light.DetailLink), zap.Error(err))
		return Result{
			Light:  light,
			Detail: crawler.NewDetailRecord(light.DetailLink),
			Report: Report{
				Link:    light.DetailLink,
				Failure: fmt.Errorf("%w: %w", crawler.ErrEnrichment, err),
			},
		}
	}
	defer release()

	detail, report := s.enricher.Enrich(ctx, session, light)
	return Result{Light: light, Detail: detail, Report: report}
}
