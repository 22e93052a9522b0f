package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

const (
	defaultRecordsTable = "process_records"
	insertChunk         = 500
)

var recordColumns = []string{
	"run_id",
	"position",
	"query",
	"process_id",
	"source",
	"link",
	"class",
	"subject",
	"forum",
	"section",
	"judge",
	"distribution_date",
	"control_number",
	"area",
	"claimed_value",
	"initial_parties",
	"parties",
	"movements",
}

// RecordStore writes final records into Postgres.
type RecordStore struct {
	pool  Pool
	table string
}

// NewRecordStore builds a store on pool. An empty table uses process_records.
func NewRecordStore(pool Pool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultRecordsTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// SaveRecords inserts records in one transaction, keyed by run and position.
// Re-saving a run is a no-op for rows already present.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, query string, records []crawler.FinalRecord) (err error) {
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin records tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for start := 0; start < len(records); start += insertChunk {
		end := min(start+insertChunk, len(records))
		builder := psql.Insert(s.table).Columns(recordColumns...)
		for i, rec := range records[start:end] {
			builder = builder.Values(
				runID,
				start+i,
				query,
				rec.ProcessID,
				rec.SourceTag,
				rec.Link,
				rec.Class,
				rec.Subject,
				rec.Forum,
				rec.Section,
				rec.Judge,
				rec.DistributionDate,
				rec.ControlNumber,
				rec.Area,
				rec.ClaimedValue,
				rec.InitialParties,
				rec.Parties,
				rec.Movements,
			)
		}
		sql, args, buildErr := builder.Suffix("ON CONFLICT (run_id, position) DO NOTHING").ToSql()
		if buildErr != nil {
			return fmt.Errorf("build insert: %w", buildErr)
		}
		if _, err = tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert records %d-%d: %w", start, end-1, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}
