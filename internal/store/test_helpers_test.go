package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/xopt/internal/table"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mergedRow builds a row as the orchestrator merges it.
func mergedRow(ix int64, x, y float64, errMsg string) table.Row {
	rec := table.Record{"x": x}
	if errMsg == "" {
		rec["y"] = y
	}
	rec[table.ErrorFlagColumn] = errMsg != ""
	rec[table.ErrorMessageColumn] = errMsg
	return table.Row{Index: ix, Values: rec}
}

var testColumns = []string{"x", "y", table.ErrorFlagColumn, table.ErrorMessageColumn}
