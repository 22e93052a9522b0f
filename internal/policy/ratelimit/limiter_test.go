package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterPacesSameHost(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		observed []string
	)
	l := New(Config{RPS: 10, Burst: 1}, func(host string, _ time.Duration) {
		mu.Lock()
		observed = append(observed, host)
		mu.Unlock()
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://esaj.tjsp.jus.br/cpopg/open.do"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://esaj.tjsp.jus.br/cpopg/show.do"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"esaj.tjsp.jus.br"}, observed)
}

func TestLimiterSeparatesHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www2.tjal.jus.br/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://esaj.tjce.jus.br/"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 2, l.Hosts())
}

func TestLimiterDisabledAndNil(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://a.example/"))
	}
	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "https://a.example/"))
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1}, nil)
	require.NoError(t, l.Wait(context.Background(), "not a url %%"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "also bad %%"))
}
