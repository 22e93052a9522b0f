package jitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextStaysInsideWindow(t *testing.T) {
	t.Parallel()

	j, err := New(DefaultMin, DefaultMax, WithSeed(7))
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		d := j.Next()
		require.GreaterOrEqual(t, d, DefaultMin)
		require.LessOrEqual(t, d, DefaultMax)
	}
}

func TestNextSeededIsReproducible(t *testing.T) {
	t.Parallel()

	a, err := New(0, time.Second, WithSeed(42))
	require.NoError(t, err)
	b, err := New(0, time.Second, WithSeed(42))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestFixedWindow(t *testing.T) {
	t.Parallel()

	j, err := New(5*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 5*time.Millisecond, j.Next())
}

func TestNewRejectsBadWindow(t *testing.T) {
	t.Parallel()

	_, err := New(time.Second, time.Millisecond)
	require.ErrorContains(t, err, "below min")
	_, err = New(-time.Second, time.Second)
	require.ErrorContains(t, err, "non-negative")
}

func TestNilJitterIsNoop(t *testing.T) {
	t.Parallel()

	var j *Jitter
	require.Zero(t, j.Next())
	require.NoError(t, j.Wait(context.Background()))
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	j, err := New(time.Minute, time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = j.Wait(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}
