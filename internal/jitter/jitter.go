// Package jitter injects randomized politeness delays around navigations.
package jitter

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Default delay window.
const (
	DefaultMin = 50 * time.Millisecond
	DefaultMax = 200 * time.Millisecond
)

// Jitter produces uniformly distributed delays in [min, max].
// A nil *Jitter never waits.
type Jitter struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Jitter.
type Option func(*Jitter)

// WithSeed makes the delay sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(j *Jitter) {
		j.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New builds a Jitter for the window [min, max].
func New(min, max time.Duration, opts ...Option) (*Jitter, error) {
	if min < 0 || max < 0 {
		return nil, fmt.Errorf("jitter window must be non-negative, got [%v, %v]", min, max)
	}
	if max < min {
		return nil, fmt.Errorf("jitter max %v is below min %v", max, min)
	}
	j := &Jitter{min: min, max: max}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Next returns the next delay.
func (j *Jitter) Next() time.Duration {
	if j == nil {
		return 0
	}
	span := int64(j.max - j.min)
	if span == 0 {
		return j.min
	}
	var n int64
	if j.rng != nil {
		j.mu.Lock()
		n = j.rng.Int64N(span + 1)
		j.mu.Unlock()
	} else {
		n = rand.Int64N(span + 1)
	}
	return j.min + time.Duration(n)
}

// Wait sleeps for Next() or until ctx is done.
func (j *Jitter) Wait(ctx context.Context) error {
	delay := j.Next()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("jitter wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
