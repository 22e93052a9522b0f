package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Pool is a fixed set of browser slots shared round-robin by sources.
// Source i uses slot i mod Size; a slot runs one source at a time.
type Pool struct {
	slots []*slot
}

type slot struct {
	browser crawler.Browser
	token   chan struct{}
}

// NewPool wraps already launched browsers.
func NewPool(browsers ...crawler.Browser) *Pool {
	p := &Pool{slots: make([]*slot, 0, len(browsers))}
	for _, b := range browsers {
		s := &slot{browser: b, token: make(chan struct{}, 1)}
		s.token <- struct{}{}
		p.slots = append(p.slots, s)
	}
	return p
}

// LaunchPool starts size browsers. Browsers launched before a failure are
// closed before returning.
func LaunchPool(ctx context.Context, launcher crawler.Launcher, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	browsers := make([]crawler.Browser, 0, size)
	for i := 0; i < size; i++ {
		b, err := launcher.Launch(ctx)
		if err != nil {
			closeErr := NewPool(browsers...).Close()
			return nil, errors.Join(fmt.Errorf("launch browser %d/%d: %w", i+1, size, err), closeErr)
		}
		browsers = append(browsers, b)
	}
	return NewPool(browsers...), nil
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.slots)
}

// Close closes every browser.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for i, s := range p.slots {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// acquire waits for exclusive use of the slot assigned to source index i.
func (p *Pool) acquire(ctx context.Context, i int) (crawler.Browser, func(), error) {
	s := p.slots[i%len(p.slots)]
	select {
	case <-s.token:
		return s.browser, func() { s.token <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("wait for browser slot: %w", ctx.Err())
	}
}
