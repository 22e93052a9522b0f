package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/docket-crawler/internal/progress"
)

// PrometheusSink exports run, source and detail counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	sourceRecords  *prometheus.CounterVec
	sourcePages    *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec

	details        *prometheus.CounterVec
	detailDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docket_runs_started_total",
			Help: "Total search runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_runs_completed_total",
			Help: "Total search runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docket_runs_running",
			Help: "Current number of running searches.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"result"}),
		sourceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_source_records_total",
			Help: "Records discovered per source.",
		}, []string{"source"}),
		sourcePages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_source_pages_total",
			Help: "Listing pages read per source.",
		}, []string{"source"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_source_failures_total",
			Help: "Discovery runs that failed per source.",
		}, []string{"source"}),
		details: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_details_total",
			Help: "Detail pages processed partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		detailDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_detail_duration_seconds",
			Help:    "Detail enrichment latency including admission wait.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"source", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.sourceRecords,
		s.sourcePages,
		s.sourceFailures,
		s.details,
		s.detailDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.finishRun(evt, "success")
		case progress.StageRunError:
			s.finishRun(evt, "error")
		case progress.StageSourceDone:
			s.sourceRecords.WithLabelValues(evt.Source).Add(float64(evt.Records))
			s.sourcePages.WithLabelValues(evt.Source).Add(float64(evt.Pages))
			if evt.Note != "" {
				s.sourceFailures.WithLabelValues(evt.Source).Inc()
			}
		case progress.StageDetailDone:
			outcome := string(evt.Outcome)
			s.details.WithLabelValues(evt.Source, outcome).Inc()
			if evt.Dur > 0 {
				s.detailDuration.WithLabelValues(evt.Source, outcome).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
