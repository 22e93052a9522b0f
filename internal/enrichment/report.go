package enrichment

import (
	"time"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Step names one unit of detail-page work.
type Step string

// Steps recorded in a Report, in execution order.
const (
	StepOpenPage  Step = "open_page"
	StepNavigate  Step = "navigate"
	StepShowMore  Step = "show_more"
	StepParties   Step = "parties"
	StepMovements Step = "movements"
	StepClosePage Step = "close_page"
)

// FieldStep is the step that reads a classification field.
func FieldStep(f crawler.Field) Step {
	return Step("field:" + string(f))
}

// Outcome is the result of one step. Err is nil on success.
type Outcome struct {
	Step Step
	Err  error
}

// Report lists what happened while enriching one record.
type Report struct {
	Link     string
	Outcomes []Outcome
	// Failure wraps crawler.ErrEnrichment. It is set when the page could not
	// be opened or loaded, in which case every field is a sentinel, or when
	// reading panicked, in which case fields read before the panic are kept.
	Failure error
	// Duration is the wall time spent on the record, including waiting for
	// an admission slot.
	Duration time.Duration
}

// Failed reports whether the record could not be enriched.
func (r Report) Failed() bool {
	return r.Failure != nil
}

// Faults returns the steps that failed without failing the record.
func (r Report) Faults() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) record(step Step, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Step: step, Err: err})
}
