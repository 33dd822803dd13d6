package generator

import (
	"github.com/roach88/xopt/internal/table"
)

// Dataset accumulates the rows a generator has been given. Append-only;
// rows whose index is already present are skipped.
type Dataset struct {
	t *table.Table
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{t: table.New()}
}

// Add appends unseen rows and returns how many were new.
func (d *Dataset) Add(rows []table.Row) (int, error) {
	fresh := make([]table.Row, 0, len(rows))
	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		if d.t.Has(row.Index) || seen[row.Index] {
			continue
		}
		seen[row.Index] = true
		fresh = append(fresh, row)
	}
	if err := d.t.Append(fresh...); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Len returns the number of stored rows.
func (d *Dataset) Len() int { return d.t.Len() }

// Table exposes the stored rows. Callers must not modify it.
func (d *Dataset) Table() *table.Table { return d.t }
