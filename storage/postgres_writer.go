package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"dvf-tools/models"
	"dvf-tools/utils"
)

// PostgresWriter mirrors scraped records into PostgreSQL as JSONB rows
// tagged with the scrape run id.
type PostgresWriter struct {
	db    *sql.DB
	runID string
}

// NewPostgresWriter opens a connection to PostgreSQL, retries the ping,
// runs schema migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn, runID string, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "postgres-ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := &PostgresWriter{db: db, runID: runID}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scraped_records (
			id          BIGSERIAL PRIMARY KEY,
			run_id      UUID        NOT NULL,
			page        INTEGER     NOT NULL,
			position    INTEGER     NOT NULL,
			payload     JSONB       NOT NULL,
			scraped_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_scraped_records_run  ON scraped_records(run_id);
		CREATE INDEX IF NOT EXISTS idx_scraped_records_page ON scraped_records(run_id, page);
	`)
	return err
}

// WriteRecords batch-inserts one page of records.
func (pw *PostgresWriter) WriteRecords(page int, records []models.Record) error {
	const batchSize = 200
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		query, args, err := buildInsert(pw.runID, page, i, records[i:end])
		if err != nil {
			return err
		}
		if _, err := pw.db.Exec(query, args...); err != nil {
			return fmt.Errorf("postgres: insert page %d: %w", page, err)
		}
	}
	return nil
}

// buildInsert renders a multi-row INSERT for batch; offset is the position of
// batch[0] within its page.
func buildInsert(runID string, page, offset int, batch []models.Record) (string, []interface{}, error) {
	const cols = 4
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, r := range batch {
		payload, err := json.Marshal(r.Values)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode record: %w", err)
		}
		base := idx * cols
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4))
		valueArgs = append(valueArgs, runID, page, offset+idx, string(payload))
	}

	query := fmt.Sprintf(`
		INSERT INTO scraped_records (run_id, page, position, payload)
		VALUES %s
	`, strings.Join(valueStrings, ","))
	return query, valueArgs, nil
}

// CountRun returns how many rows are stored for this writer's run.
func (pw *PostgresWriter) CountRun(ctx context.Context) (int, error) {
	var n int
	err := pw.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scraped_records WHERE run_id = $1`, pw.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count run: %w", err)
	}
	return n, nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
