package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Reserved result columns written by the orchestrator for every merged row.
const (
	ErrorFlagColumn    = "xopt_error"
	ErrorMessageColumn = "xopt_error_str"
)

// ErrDuplicateIndex is returned when a row index is already present.
var ErrDuplicateIndex = errors.New("duplicate row index")

// Record maps column names to values.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Float returns the named value as a float64.
// Missing and non-numeric values report ok=false.
func (r Record) Float(name string) (float64, bool) {
	v, ok := r[name]
	if !ok {
		return math.NaN(), false
	}
	return ToFloat(v)
}

// Row is a record together with its run-wide index.
type Row struct {
	Index  int64
	Values Record
}

// Table is an index-keyed collection of rows.
//
// Not safe for concurrent use; the orchestrator owns its tables from a
// single goroutine.
type Table struct {
	columns []string
	colSet  map[string]struct{}
	index   []int64 // ascending
	rows    map[int64]Record
}

// New creates an empty table.
func New() *Table {
	return &Table{
		colSet: make(map[string]struct{}),
		rows:   make(map[int64]Record),
	}
}

// FromRows builds a table from rows. Fails on duplicate indices.
func FromRows(rows []Row) (*Table, error) {
	t := New()
	if err := t.Append(rows...); err != nil {
		return nil, err
	}
	return t, nil
}

// Append inserts rows keyed by their index.
//
// All indices are checked before anything is inserted, so a failed Append
// leaves the table unchanged.
func (t *Table) Append(rows ...Row) error {
	seen := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := t.rows[row.Index]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, row.Index)
		}
		if _, ok := seen[row.Index]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, row.Index)
		}
		seen[row.Index] = struct{}{}
	}

	for _, row := range rows {
		rec := row.Values.Clone()
		if rec == nil {
			rec = Record{}
		}
		t.rows[row.Index] = rec
		t.insertIndex(row.Index)
		t.addColumns(rec)
	}
	return nil
}

// AppendColumns registers columns in order without adding rows. Used to keep
// a batch's declared column order when some columns are absent from every row.
func (t *Table) AppendColumns(names ...string) {
	for _, name := range names {
		if _, ok := t.colSet[name]; ok {
			continue
		}
		t.colSet[name] = struct{}{}
		t.columns = append(t.columns, name)
	}
}

func (t *Table) insertIndex(ix int64) {
	n := len(t.index)
	if n == 0 || t.index[n-1] < ix {
		t.index = append(t.index, ix)
		return
	}
	pos := sort.Search(n, func(i int) bool { return t.index[i] >= ix })
	t.index = append(t.index, 0)
	copy(t.index[pos+1:], t.index[pos:])
	t.index[pos] = ix
}

func (t *Table) addColumns(rec Record) {
	if len(rec) == 0 {
		return
	}
	var fresh []string
	for name := range rec {
		if _, ok := t.colSet[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	// Map iteration order is random; keep new columns deterministic.
	sort.Strings(fresh)
	t.AppendColumns(fresh...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.index)
}

// Columns returns the column names in first-seen order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether name is a known column.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.colSet[name]
	return ok
}

// Indices returns the row indices in ascending order.
func (t *Table) Indices() []int64 {
	if t == nil {
		return nil
	}
	out := make([]int64, len(t.index))
	copy(out, t.index)
	return out
}

// Has reports whether ix is present.
func (t *Table) Has(ix int64) bool {
	if t == nil {
		return false
	}
	_, ok := t.rows[ix]
	return ok
}

// Get returns a copy of the row at ix.
func (t *Table) Get(ix int64) (Record, bool) {
	if t == nil {
		return nil, false
	}
	rec, ok := t.rows[ix]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Rows returns copies of all rows in index order.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	out := make([]Row, 0, len(t.index))
	for _, ix := range t.index {
		out = append(out, Row{Index: ix, Values: t.rows[ix].Clone()})
	}
	return out
}

// Select returns copies of the rows at the given indices, in the order given.
// Missing indices are skipped.
func (t *Table) Select(ixs ...int64) []Row {
	out := make([]Row, 0, len(ixs))
	for _, ix := range ixs {
		if rec, ok := t.Get(ix); ok {
			out = append(out, Row{Index: ix, Values: rec})
		}
	}
	return out
}

// Remove deletes rows. Columns are retained.
func (t *Table) Remove(ixs ...int64) {
	if len(ixs) == 0 {
		return
	}
	drop := make(map[int64]struct{}, len(ixs))
	for _, ix := range ixs {
		if _, ok := t.rows[ix]; ok {
			drop[ix] = struct{}{}
			delete(t.rows, ix)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := t.index[:0]
	for _, ix := range t.index {
		if _, ok := drop[ix]; !ok {
			kept = append(kept, ix)
		}
	}
	t.index = kept
}

// Float returns a column as float64 values in index order.
// Missing and non-numeric cells are NaN.
func (t *Table) Float(col string) []float64 {
	if t == nil {
		return nil
	}
	out := make([]float64, len(t.index))
	for i, ix := range t.index {
		v, ok := t.rows[ix][col]
		if !ok {
			out[i] = math.NaN()
			continue
		}
		f, ok := ToFloat(v)
		if !ok {
			f = math.NaN()
		}
		out[i] = f
	}
	return out
}

// ToFloat converts common numeric representations to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return math.NaN(), false
	}
}
