package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsCapacity(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, DefaultCapacity, New(0).Capacity())
	require.EqualValues(t, 3, New(3).Capacity())
}

func TestLimiterNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	l := New(3)
	var (
		wg      sync.WaitGroup
		current atomic.Int64
		maxSeen atomic.Int64
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen.Load(), int64(3))
	require.LessOrEqual(t, l.Peak(), int64(3))
	require.Zero(t, l.Active())
	require.EqualValues(t, 30, l.Acquired())
}

func TestDoReleasesOnError(t *testing.T) {
	t.Parallel()

	l := New(1)
	boom := errors.New("boom")
	err := l.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, l.Active())

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	require.Zero(t, l.Active())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.EqualValues(t, 1, l.Active())
}

func TestAcquireIsFIFO(t *testing.T) {
	t.Parallel()

	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, l.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			}))
		}(i)
		// Let waiter i enqueue before the next one starts.
		require.Eventually(t, func() bool { return l.Waiting() == int64(i+1) }, time.Second, time.Millisecond)
	}
	release()
	wg.Wait()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
