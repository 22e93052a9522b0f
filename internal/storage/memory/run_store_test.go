package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	run := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.UpsertRunStart(ctx, run, "acme", start))
	require.NoError(t, s.UpsertRunStart(ctx, run, "ignored", start.Add(time.Hour)))
	require.NoError(t, s.UpsertSourceStats(ctx, run, "tjsp", store.SourceDelta{Discovered: 6, Pages: 2}, start.Add(time.Second)))
	require.NoError(t, s.UpsertSourceStats(ctx, run, "tjsp", store.SourceDelta{Enriched: 5, Failed: 1}, start.Add(2*time.Second)))
	require.NoError(t, s.UpsertSourceStats(ctx, run, "tjal", store.SourceDelta{Error: "source unavailable"}, start.Add(time.Second)))
	require.NoError(t, s.CompleteRun(ctx, run, start.Add(time.Minute), store.RunSuccess, 6, nil))

	got, err := s.GetRun(ctx, run)
	require.NoError(t, err)
	require.Equal(t, "acme", got.Query)
	require.Equal(t, start, got.StartedAt)
	require.Equal(t, store.RunSuccess, got.Status)
	require.EqualValues(t, 6, got.Records)
	require.NotNil(t, got.FinishedAt)

	sources, err := s.ListRunSources(ctx, run, 10, 0)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "tjal", sources[0].Source)
	require.Equal(t, "source unavailable", *sources[0].Error)
	require.Equal(t, "tjsp", sources[1].Source)
	require.EqualValues(t, 6, sources[1].Discovered)
	require.EqualValues(t, 5, sources[1].Enriched)
	require.EqualValues(t, 1, sources[1].Failed)
	require.Equal(t, start.Add(2*time.Second), sources[1].LastUpdate)
}

func TestRunStoreListFiltersAndPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	base := time.Unix(1700000000, 0).UTC()
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, s.UpsertRunStart(ctx, ids[i], "q", base.Add(time.Duration(i)*time.Minute)))
	}
	msg := "boom"
	require.NoError(t, s.CompleteRun(ctx, ids[0], base, store.RunError, 0, &msg))

	all, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	running := store.RunRunning
	filtered, err := s.ListRuns(ctx, &running, 1, 1)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, ids[1], filtered[0].ID)

	empty, err := s.ListRuns(ctx, nil, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestRunStoreNotFound(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	_, err := s.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.CompleteRun(context.Background(), uuid.New(), time.Now(), store.RunSuccess, 0, nil), store.ErrNotFound)
}
