package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// extractPage turns every result block on the current page into a record.
// Blocks are read concurrently and kept in page order; blocks without a
// process link are dropped.
func (o *Orchestrator) extractPage(ctx context.Context, page crawler.Page, src crawler.SourceEndpoint) ([]crawler.LightRecord, error) {
	blocks, err := page.QuerySelectorAll(ctx, o.cfg.Selectors.ResultBlock)
	if err != nil {
		return nil, fmt.Errorf("list result blocks: %w", err)
	}

	base := pageBase(ctx, page, src)
	found := make([]*crawler.LightRecord, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	for i, block := range blocks {
		g.Go(func() error {
			rec, err := o.extractBlock(gctx, block, src, base)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				o.logger.Debug("result block skipped", zap.String("source", src.Tag()), zap.Int("block", i), zap.Error(err))
				return nil
			}
			found[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract result blocks: %w", err)
	}

	records := make([]crawler.LightRecord, 0, len(found))
	for _, rec := range found {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (o *Orchestrator) extractBlock(ctx context.Context, block crawler.Element, src crawler.SourceEndpoint, base string) (*crawler.LightRecord, error) {
	sel := o.cfg.Selectors
	link, err := block.QuerySelector(ctx, sel.ResultLink)
	if err != nil {
		return nil, err
	}
	id, err := link.Text(ctx)
	if err != nil {
		return nil, fmt.Errorf("read process id: %w", err)
	}
	href, ok, err := link.Attribute(ctx, "href")
	if err != nil {
		return nil, fmt.Errorf("read process link: %w", err)
	}
	if !ok || strings.TrimSpace(href) == "" {
		return nil, fmt.Errorf("%w: process link has no href", crawler.ErrNoElement)
	}
	detail, err := absolute(base, href)
	if err != nil {
		return nil, err
	}
	parties, err := o.extractParties(ctx, block)
	if err != nil {
		return nil, err
	}
	return &crawler.LightRecord{
		ProcessID:      strings.TrimSpace(id),
		DetailLink:     detail,
		SourceTag:      src.Tag(),
		InitialParties: parties,
	}, nil
}

// extractParties reads role and name from every party cell. Cells missing
// either part are skipped.
func (o *Orchestrator) extractParties(ctx context.Context, block crawler.Element) ([]crawler.Party, error) {
	sel := o.cfg.Selectors
	cells, err := block.QuerySelectorAll(ctx, sel.PartyBlock)
	if err != nil {
		return nil, fmt.Errorf("list party cells: %w", err)
	}
	parties := make([]crawler.Party, 0, len(cells))
	for _, cell := range cells {
		role, err := textOf(ctx, cell, sel.PartyRole)
		if err != nil {
			if errors.Is(err, crawler.ErrNoElement) {
				continue
			}
			return nil, err
		}
		name, err := textOf(ctx, cell, sel.PartyName)
		if err != nil {
			if errors.Is(err, crawler.ErrNoElement) {
				continue
			}
			return nil, err
		}
		parties = append(parties, crawler.Party{Role: trimRole(role), Name: name})
	}
	return parties, nil
}

// nextPage returns the URL behind an enabled next control.
func (o *Orchestrator) nextPage(ctx context.Context, page crawler.Page, src crawler.SourceEndpoint) (string, bool) {
	next, err := page.QuerySelector(ctx, o.cfg.Selectors.NextPage)
	if err != nil {
		return "", false
	}
	class, _, err := next.Attribute(ctx, "class")
	if err != nil || strings.Contains(class, "disabled") {
		return "", false
	}
	href, ok, err := next.Attribute(ctx, "href")
	if err != nil || !ok {
		return "", false
	}
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	dest, err := absolute(pageBase(ctx, page, src), href)
	if err != nil {
		return "", false
	}
	return dest, true
}

func textOf(ctx context.Context, scope crawler.Element, selector string) (string, error) {
	el, err := scope.QuerySelector(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// pageBase is the address relative links on page resolve against. The
// source root stands in when the page cannot report its location.
func pageBase(ctx context.Context, page crawler.Page, src crawler.SourceEndpoint) string {
	if loc, err := page.URL(ctx); err == nil && loc != "" {
		return loc
	}
	return src.Tag() + "/"
}

// absolute resolves href against baseURL.
func absolute(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
