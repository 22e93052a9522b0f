// Package enrichment fetches process detail pages and schedules those
// fetches under a global admission limit.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// DefaultDetailTimeout bounds a detail page navigation.
const DefaultDetailTimeout = 30 * time.Second

// Config controls detail extraction.
type Config struct {
	Selectors     crawler.DetailSelectors
	DetailTimeout time.Duration
}

// Enricher reads one detail page into a DetailRecord.
type Enricher struct {
	cfg    Config
	logger *zap.Logger
}

// NewEnricher builds an Enricher. Empty selectors fall back to the e-SAJ defaults.
func NewEnricher(cfg Config, logger *zap.Logger) *Enricher {
	if len(cfg.Selectors.Fields) == 0 && cfg.Selectors.MovementRows == "" {
		cfg.Selectors = crawler.DefaultDetailSelectors()
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = DefaultDetailTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{cfg: cfg, logger: logger.Named("enrichment")}
}

// Enrich opens a page in session, reads light's detail page and closes the
// page. It always returns a record: fields that could not be read keep the
// sentinel, and a page that could not be loaded yields an all-sentinel
// record with Report.Failure set.
func (e *Enricher) Enrich(ctx context.Context, session crawler.Session, light crawler.LightRecord) (detail crawler.DetailRecord, report Report) {
	detail = crawler.NewDetailRecord(light.DetailLink)
	report = Report{Link: light.DetailLink}
	defer func() {
		if r := recover(); r != nil {
			report.Failure = fmt.Errorf("%w: panic: %v", crawler.ErrEnrichment, r)
		}
		if report.Failure != nil {
			e.logger.Warn("detail enrichment failed",
				zap.String("link", light.DetailLink),
				zap.String("source", light.SourceTag),
				zap.Error(report.Failure),
			)
		}
	}()

	page, err := session.NewPage(ctx)
	report.record(StepOpenPage, err)
	if err != nil {
		report.Failure = fmt.Errorf("%w: open page: %w", crawler.ErrEnrichment, err)
		return detail, report
	}
	defer func() {
		report.record(StepClosePage, page.Close())
	}()

	err = page.Navigate(ctx, light.DetailLink, crawler.WaitDOMContentLoaded, e.cfg.DetailTimeout)
	report.record(StepNavigate, err)
	if err != nil {
		report.Failure = fmt.Errorf("%w: %w", crawler.ErrEnrichment, err)
		return detail, report
	}

	report.record(StepShowMore, e.expand(ctx, page))
	for _, loc := range e.cfg.Selectors.Fields {
		value, err := readText(ctx, page, loc.Selector)
		if err == nil {
			detail.Set(loc.Field, value)
		}
		report.record(FieldStep(loc.Field), err)
	}

	parties, err := e.parties(ctx, page)
	report.record(StepParties, err)
	detail.Parties = parties

	movements, err := e.movements(ctx, page)
	report.record(StepMovements, err)
	detail.Movements = movements
	return detail, report
}

// expand clicks the secondary-data toggle when the page has one.
func (e *Enricher) expand(ctx context.Context, page crawler.Page) error {
	btn, err := page.QuerySelector(ctx, e.cfg.Selectors.ShowMore)
	if errors.Is(err, crawler.ErrNoElement) {
		return nil
	}
	if err != nil {
		return err
	}
	return btn.Click(ctx)
}

// parties prefers the full party table, shown by its toggle, over the
// primary parties table.
func (e *Enricher) parties(ctx context.Context, page crawler.Page) ([]crawler.Party, error) {
	sel := e.cfg.Selectors
	rowsSelector := sel.PrimaryPartiesRows
	toggle, err := page.QuerySelector(ctx, sel.AllPartiesToggle)
	switch {
	case err == nil:
		if err := toggle.Click(ctx); err != nil {
			return []crawler.Party{}, fmt.Errorf("show all parties: %w", err)
		}
		rowsSelector = sel.AllPartiesRows
	case !errors.Is(err, crawler.ErrNoElement):
		return []crawler.Party{}, err
	}

	rows, err := page.QuerySelectorAll(ctx, rowsSelector)
	if err != nil {
		return []crawler.Party{}, err
	}
	out := make([]crawler.Party, 0, len(rows))
	for _, row := range rows {
		role, errRole := readText(ctx, row, sel.PartyRole)
		name, errName := readText(ctx, row, sel.PartyName)
		if errRole != nil || errName != nil {
			continue
		}
		out = append(out, crawler.Party{Role: role, Name: name})
	}
	return out, nil
}

func (e *Enricher) movements(ctx context.Context, page crawler.Page) ([]crawler.MovementEntry, error) {
	sel := e.cfg.Selectors
	rows, err := page.QuerySelectorAll(ctx, sel.MovementRows)
	if err != nil {
		return []crawler.MovementEntry{}, err
	}
	out := make([]crawler.MovementEntry, 0, len(rows))
	for _, row := range rows {
		date, errDate := readText(ctx, row, sel.MovementDate)
		desc, errDesc := readText(ctx, row, sel.MovementDescription)
		if errDate != nil || errDesc != nil {
			continue
		}
		out = append(out, crawler.MovementEntry{Date: date, Description: desc})
	}
	return out, nil
}

type scope interface {
	QuerySelector(ctx context.Context, selector string) (crawler.Element, error)
}

func readText(ctx context.Context, in scope, selector string) (string, error) {
	el, err := in.QuerySelector(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}
