package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageSourceDone Stage = "SOURCE_DONE"
	StageDetailDone Stage = "DETAIL_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Outcome classifies a finished detail page.
type Outcome string

// Detail outcomes.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

// Event captures one milestone of a run.
type Event struct {
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Query is set on RUN_START.
	Query string
	// Source is the source tag for SOURCE_DONE and DETAIL_DONE.
	Source string
	// URL is the detail link for DETAIL_DONE.
	URL string
	// Records counts discovered records on SOURCE_DONE and final records on RUN_DONE.
	Records int64
	// Pages counts listing pages read on SOURCE_DONE.
	Pages   int64
	Outcome Outcome
	Dur     time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
	case StageDetailDone:
		if e.Source == "" {
			return errors.New("detail done requires source")
		}
		switch e.Outcome {
		case OutcomeOK, OutcomeDegraded, OutcomeFailed:
		default:
			return fmt.Errorf("detail done has unknown outcome %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
