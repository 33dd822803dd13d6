package testutil

import (
	"github.com/roach88/xopt/internal/table"
)

// SequenceGenerator proposes {"x": 0}, {"x": 1}, ... and records every
// AddData batch. It is a generator.Finisher once Limit candidates have been
// produced, when Limit is positive.
type SequenceGenerator struct {
	// Limit caps the total number of candidates. Zero is unlimited.
	Limit int
	// GenerateErr, when set, is returned by Generate.
	GenerateErr error
	// AddErr, when set, is returned by AddData.
	AddErr error

	next     int
	Requests []int
	Batches  [][]table.Row
}

// Generate returns n sequential candidates, fewer if Limit is reached.
func (g *SequenceGenerator) Generate(n int) ([]table.Record, error) {
	g.Requests = append(g.Requests, n)
	if g.GenerateErr != nil {
		return nil, g.GenerateErr
	}
	if g.Limit > 0 {
		n = min(n, g.Limit-g.next)
	}
	out := make([]table.Record, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, table.Record{"x": float64(g.next)})
		g.next++
	}
	return out, nil
}

// AddData records the batch.
func (g *SequenceGenerator) AddData(rows []table.Row) error {
	if g.AddErr != nil {
		return g.AddErr
	}
	g.Batches = append(g.Batches, rows)
	return nil
}

// Done reports whether Limit candidates have been produced.
func (g *SequenceGenerator) Done() bool {
	return g.Limit > 0 && g.next >= g.Limit
}

// Seen returns the indices of every row passed to AddData, in call order.
func (g *SequenceGenerator) Seen() []int64 {
	var out []int64
	for _, b := range g.Batches {
		for _, row := range b {
			out = append(out, row.Index)
		}
	}
	return out
}
