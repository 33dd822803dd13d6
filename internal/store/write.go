package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/xopt/internal/table"
)

// WriteRun inserts a run or replaces its config. The creation time of an
// existing run is kept.
func (s *Store) WriteRun(ctx context.Context, runID, config string) error {
	if runID == "" {
		return fmt.Errorf("write run: empty run id")
	}
	if config == "" {
		config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, config)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config
	`, runID, config)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// RecordAssigned notes that indices up to last have been handed out for the
// run, whether or not their rows were ever recorded. The stored value never
// decreases. The run is created if it does not exist yet.
func (s *Store) RecordAssigned(ctx context.Context, runID string, last int64) error {
	if runID == "" {
		return fmt.Errorf("record assigned: empty run id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, last_ix)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET last_ix = MAX(runs.last_ix, excluded.last_ix)
	`, runID, last)
	if err != nil {
		return fmt.Errorf("record assigned: %w", err)
	}
	return nil
}

// RecordBatch appends one merge batch to a run's observation log in a single
// transaction. The run is created if it does not exist yet.
//
// Uses ON CONFLICT(run_id, ix) DO NOTHING: a row already recorded for the
// run is silently ignored, so replaying a batch is harmless.
func (s *Store) RecordBatch(ctx context.Context, runID string, columns []string, rows []table.Row) error {
	if runID == "" {
		return fmt.Errorf("record batch: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, runID); err != nil {
		return fmt.Errorf("record batch: ensure run: %w", err)
	}

	if err := writeColumns(ctx, tx, runID, columns); err != nil {
		return fmt.Errorf("record batch: %w", err)
	}

	for _, row := range rows {
		values, err := marshalValues(row.Values)
		if err != nil {
			return fmt.Errorf("record batch: row %d: %w", row.Index, err)
		}
		failed, msg := errorFields(row.Values)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO observations (run_id, ix, values_json, error, error_str)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, ix) DO NOTHING
		`, runID, row.Index, values, failed, msg); err != nil {
			return fmt.Errorf("record batch: row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record batch: commit: %w", err)
	}
	return nil
}

// writeColumns appends columns the run has not seen yet, keeping order.
func writeColumns(ctx context.Context, tx *sql.Tx, runID string, columns []string) error {
	var next int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM run_columns WHERE run_id = ?
	`, runID).Scan(&next); err != nil {
		return fmt.Errorf("read columns: %w", err)
	}

	for _, name := range columns {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO run_columns (run_id, position, name)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, name) DO NOTHING
		`, runID, next, name)
		if err != nil {
			return fmt.Errorf("write column %q: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			next++
		}
	}
	return nil
}
