package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

// RunStore implements store.RunRepository on the crawl_runs and
// crawl_run_sources tables.
type RunStore struct {
	pool Pool
}

// NewRunStore builds a RunStore on pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// UpsertRunStart inserts a running run; repeated starts keep the original row.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, query string, startedAt time.Time) error {
	const q = `
		INSERT INTO crawl_runs (id, query, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, q, runID, query, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with status and an optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	records int64,
	errMsg *string,
) error {
	const q = `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, records = $3, error_message = $4
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, q, finishedAt, status, records, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertSourceStats adds delta to the (run, source) row, creating it when needed.
func (s *RunStore) UpsertSourceStats(ctx context.Context, runID uuid.UUID, source string, delta store.SourceDelta, at time.Time) error {
	const q = `
		INSERT INTO crawl_run_sources (run_id, source, last_update, discovered, pages, enriched, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		ON CONFLICT (run_id, source) DO UPDATE SET
			last_update = GREATEST(crawl_run_sources.last_update, EXCLUDED.last_update),
			discovered  = crawl_run_sources.discovered + EXCLUDED.discovered,
			pages       = crawl_run_sources.pages + EXCLUDED.pages,
			enriched    = crawl_run_sources.enriched + EXCLUDED.enriched,
			failed      = crawl_run_sources.failed + EXCLUDED.failed,
			error       = COALESCE(EXCLUDED.error, crawl_run_sources.error);
	`
	_, err := s.pool.Exec(ctx, q,
		runID,
		source,
		at,
		delta.Discovered,
		delta.Pages,
		delta.Enriched,
		delta.Failed,
		delta.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source stats: %w", err)
	}
	return nil
}

var runColumns = []string{"id", "query", "started_at", "finished_at", "status", "records", "error_message"}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	sql, args, err := psql.Select(runColumns...).From("crawl_runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return store.Run{}, fmt.Errorf("build run query: %w", err)
	}
	run, err := scanRun(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	builder := psql.Select(runColumns...).From("crawl_runs").OrderBy("started_at DESC")
	if status != nil {
		builder = builder.Where(sq.Eq{"status": *status})
	}
	sql, args, err := paginate(builder, limit, offset).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunSources returns a run's per-source stats ordered by source tag.
func (s *RunStore) ListRunSources(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.SourceStats, error) {
	builder := psql.
		Select("run_id", "source", "last_update", "discovered", "pages", "enriched", "failed", "error").
		From("crawl_run_sources").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("source")
	sql, args, err := paginate(builder, limit, offset).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sources: %w", err)
	}
	defer rows.Close()

	stats := []store.SourceStats{}
	for rows.Next() {
		var st store.SourceStats
		if err := rows.Scan(
			&st.RunID,
			&st.Source,
			&st.LastUpdate,
			&st.Discovered,
			&st.Pages,
			&st.Enriched,
			&st.Failed,
			&st.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run sources: %w", err)
	}
	return stats, nil
}

func paginate(b sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return b
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	err := row.Scan(
		&run.ID,
		&run.Query,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Records,
		&run.ErrorMessage,
	)
	return run, err
}
