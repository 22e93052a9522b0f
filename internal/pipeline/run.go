package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/docket-crawler/internal/aggregate"
	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/export"
)

// Run is the outcome of one crawl.
type Run struct {
	ID         uuid.UUID             `json:"run_id"`
	Query      string                `json:"query"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Records    []crawler.FinalRecord `json:"records"`
	Sources    []SourceSummary       `json:"sources"`
	Stats      aggregate.Stats       `json:"-"`
	Export     *export.Manifest      `json:"export,omitempty"`
	MessageID  string                `json:"message_id,omitempty"`
}

// SourceSummary is the serializable form of a discovery.SourceReport.
type SourceSummary struct {
	Source  string `json:"source"`
	Records int    `json:"records"`
	Pages   int    `json:"pages"`
	Error   string `json:"error,omitempty"`
}

func newSourceSummary(rep discovery.SourceReport) SourceSummary {
	s := SourceSummary{Source: rep.Source, Records: rep.Records, Pages: rep.Pages}
	if rep.Err != nil {
		s.Error = rep.Err.Error()
	}
	return s
}

// Summary is the notification payload published for a finished run.
type Summary struct {
	RunID      string           `json:"run_id"`
	Query      string           `json:"query"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Records    int              `json:"records"`
	Failed     int              `json:"failed"`
	Degraded   int              `json:"degraded"`
	Sources    []SourceSummary  `json:"sources"`
	Export     *export.Manifest `json:"export,omitempty"`
}

// Summary condenses the run for downstream consumers.
func (r *Run) Summary() Summary {
	return Summary{
		RunID:      r.ID.String(),
		Query:      r.Query,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Records:    len(r.Records),
		Failed:     r.Stats.Failed,
		Degraded:   r.Stats.Degraded,
		Sources:    r.Sources,
		Export:     r.Export,
	}
}
