// Package store provides Postgres-backed persistence for pipeline runs.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartx/imagesync/internal/pipeline"
	"github.com/cartx/imagesync/internal/report"
)

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres persists run summaries and per-task outcomes. It satisfies
// pipeline.RunStore.
type Postgres struct {
	pool execCloser
}

// New connects a pool from the DSN and verifies the schema exists.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run tables when they are missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS image_runs (
	run_id          TEXT PRIMARY KEY,
	started_at      TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT NOT NULL,
	total           INT NOT NULL,
	succeeded       INT NOT NULL,
	failed          INT NOT NULL,
	browser_skipped BOOLEAN NOT NULL,
	failed_keys     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS image_run_outcomes (
	run_id      TEXT NOT NULL REFERENCES image_runs(run_id),
	product_id  TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL,
	image_url   TEXT NOT NULL,
	PRIMARY KEY (run_id, storage_key, stage)
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordRun upserts the run summary. The orchestrator calls it once at run
// start so outcome rows always have a parent, then again at the end with
// final counts; later calls overwrite the row.
func (s *Postgres) RecordRun(ctx context.Context, r report.Report) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	keys := r.FailedKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshal failed keys: %w", err)
	}
	const query = `
INSERT INTO image_runs (
	run_id,
	started_at,
	duration_ms,
	total,
	succeeded,
	failed,
	browser_skipped,
	failed_keys
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (run_id) DO UPDATE SET
	duration_ms     = EXCLUDED.duration_ms,
	total           = EXCLUDED.total,
	succeeded       = EXCLUDED.succeeded,
	failed          = EXCLUDED.failed,
	browser_skipped = EXCLUDED.browser_skipped,
	failed_keys     = EXCLUDED.failed_keys`
	args := []any{
		r.RunID,
		r.StartedAt,
		r.Duration.Milliseconds(),
		r.Total,
		r.Succeeded(),
		r.Failed(),
		r.BrowserSkipped,
		keysJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcome inserts one terminal task result.
func (s *Postgres) RecordOutcome(ctx context.Context, runID string, res pipeline.TaskResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	const query = `
INSERT INTO image_run_outcomes (
	run_id,
	product_id,
	storage_key,
	stage,
	status,
	reason,
	image_url
) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	args := []any{
		runID,
		res.Task.ProductID,
		res.Task.StorageKey,
		res.Stage,
		string(res.Status),
		string(res.Reason),
		res.ImageURL,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}
