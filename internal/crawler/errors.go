package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoElement is returned by page drivers when a selector matches nothing.
	ErrNoElement = errors.New("element not found")
	// ErrSourceUnavailable marks a source whose search showed an error or no results.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEnrichment marks a detail fetch that failed before extraction could run.
	ErrEnrichment = errors.New("enrichment failed")
)

// MinQueryLength is the shortest trimmed query the sources accept.
const MinQueryLength = 3

// ValidationError reports a query rejected before any network activity.
type ValidationError struct {
	Query  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}
