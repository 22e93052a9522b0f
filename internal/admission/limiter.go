// Package admission provides the global gate bounding simultaneous detail fetches.
package admission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of detail pages allowed open at once.
const DefaultCapacity = 5

// Limiter is a counting admission gate. Waiters are admitted in FIFO order.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64

	active   atomic.Int64
	waiting  atomic.Int64
	peak     atomic.Int64
	acquired atomic.Int64
}

// New creates a Limiter; capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot frees or ctx ends. The returned release func is
// safe to call more than once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire admission slot: %w", err)
	}
	l.waiting.Add(1)
	err := l.sem.Acquire(ctx, 1)
	l.waiting.Add(-1)
	if err != nil {
		return nil, fmt.Errorf("acquire admission slot: %w", err)
	}
	l.acquired.Add(1)
	l.updatePeak(l.active.Add(1))

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a slot; the slot is released on every exit path.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Capacity returns the configured slot count.
func (l *Limiter) Capacity() int64 { return l.capacity }

// Active returns the number of slots currently held.
func (l *Limiter) Active() int64 { return l.active.Load() }

// Waiting returns the number of callers blocked in Acquire.
func (l *Limiter) Waiting() int64 { return l.waiting.Load() }

// Peak returns the highest concurrent occupancy observed.
func (l *Limiter) Peak() int64 { return l.peak.Load() }

// Acquired returns how many slots have been granted in total.
func (l *Limiter) Acquired() int64 { return l.acquired.Load() }

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
