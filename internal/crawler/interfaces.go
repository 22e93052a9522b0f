package crawler

import (
	"context"
	"io"
	"time"
)

// WaitStrategy selects when a navigation counts as finished.
type WaitStrategy string

// Supported navigation wait strategies.
const (
	WaitLoad             WaitStrategy = "load"
	WaitDOMContentLoaded WaitStrategy = "domcontentloaded"
)

// ElementState is the condition WaitForSelector waits for.
type ElementState string

// Supported element states.
const (
	StateAttached ElementState = "attached"
	StateVisible  ElementState = "visible"
)

// KeyEnter is the key name used to submit search forms.
const KeyEnter = "Enter"

// SessionOptions configures an isolated browsing session.
type SessionOptions struct {
	Locale     string
	TimezoneID string
	UserAgent  string
	InitScript string
}

// Launcher starts browser instances used as session pool slots.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one session pool slot.
type Browser interface {
	OpenSession(ctx context.Context, opts SessionOptions) (Session, error)
	Close() error
}

// Session is an isolated browsing context (cookies, locale, fingerprint).
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab owned by exactly one goroutine.
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitStrategy, timeout time.Duration) error
	// URL is the address of the current document. Relative links resolve
	// against it.
	URL(ctx context.Context) (string, error)
	// QuerySelector returns ErrNoElement when nothing matches.
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	WaitForSelector(ctx context.Context, selector string, state ElementState, timeout time.Duration) error
	Close() error
}

// Element is a node handle scoped to the page that produced it.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute reports ok=false when the attribute is not set.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Click(ctx context.Context) error
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
}

// BlobStore writes export artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher announces finished runs to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordStore persists final records for a run.
type RecordStore interface {
	SaveRecords(ctx context.Context, runID string, query string, records []FinalRecord) error
}
