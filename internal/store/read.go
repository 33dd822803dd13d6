package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/xopt/internal/table"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// Run is a stored run record.
type Run struct {
	ID        string
	Config    string
	CreatedAt string
	// LastIndex is the highest index assigned or recorded for the run, -1
	// when there is none.
	LastIndex int64
}

// RunSummary describes a run for listings.
type RunSummary struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Rows      int    `json:"rows"`
	Failures  int    `json:"failures"`
	LastIndex int64  `json:"last_ix"`
}

// ReadRun returns the run record for runID.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.config, r.created_at,
		       MAX(r.last_ix, COALESCE((SELECT MAX(ix) FROM observations o WHERE o.run_id = r.id), -1))
		FROM runs r WHERE r.id = ?
	`, runID).Scan(&r.ID, &r.Config, &r.CreatedAt, &r.LastIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run, oldest first.
//
// Returns an empty slice (not nil) when the store has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.created_at,
		       COUNT(o.ix),
		       COALESCE(SUM(o.error), 0),
		       MAX(r.last_ix, COALESCE(MAX(o.ix), -1))
		FROM runs r
		LEFT JOIN observations o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at ASC, r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Rows, &r.Failures, &r.LastIndex); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadObservations rebuilds a run's observation table, rows in index order
// and columns in the order they were first recorded.
func (s *Store) ReadObservations(ctx context.Context, runID string) (*table.Table, error) {
	return s.readObservations(ctx, runID, false)
}

// ReadFailures returns only the failed rows of a run.
func (s *Store) ReadFailures(ctx context.Context, runID string) (*table.Table, error) {
	return s.readObservations(ctx, runID, true)
}

func (s *Store) readObservations(ctx context.Context, runID string, failedOnly bool) (*table.Table, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, err
	}

	columns, err := s.readColumns(ctx, runID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ix, values_json, error, error_str
		FROM observations
		WHERE run_id = ?`
	if failedOnly {
		query += ` AND error = 1`
	}
	query += `
		ORDER BY ix ASC`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []table.Row
	for rows.Next() {
		var (
			ix     int64
			values string
			failed bool
			msg    string
		)
		if err := rows.Scan(&ix, &values, &failed, &msg); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		rec, err := unmarshalValues(values)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", ix, err)
		}
		rec[table.ErrorFlagColumn] = failed
		rec[table.ErrorMessageColumn] = msg
		out = append(out, table.Row{Index: ix, Values: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}

	t := table.New()
	t.AppendColumns(columns...)
	if err := t.Append(out...); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) readColumns(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM run_columns
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}
