package table

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AppendOutOfOrder(t *testing.T) {
	tbl := New()

	require.NoError(t, tbl.Append(Row{Index: 2, Values: Record{"x": 2.0}}))
	require.NoError(t, tbl.Append(Row{Index: 0, Values: Record{"x": 0.0}}))
	require.NoError(t, tbl.Append(Row{Index: 1, Values: Record{"x": 1.0}}))

	assert.Equal(t, []int64{0, 1, 2}, tbl.Indices())
	assert.Equal(t, []float64{0, 1, 2}, tbl.Float("x"))
}

func TestTable_AppendRejectsDuplicate(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Append(Row{Index: 0, Values: Record{"x": 1.0}}))

	err := tbl.Append(Row{Index: 1, Values: Record{"x": 2.0}}, Row{Index: 0, Values: Record{"x": 9.0}})
	require.ErrorIs(t, err, ErrDuplicateIndex)

	// Failed append is all-or-nothing.
	assert.Equal(t, 1, tbl.Len())
	rec, ok := tbl.Get(0)
	require.True(t, ok)
	assert.Equal(t, 1.0, rec["x"])
}

func TestTable_AppendRejectsDuplicateWithinBatch(t *testing.T) {
	tbl := New()
	err := tbl.Append(Row{Index: 3}, Row{Index: 3})
	require.ErrorIs(t, err, ErrDuplicateIndex)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_RowsAreCopies(t *testing.T) {
	tbl := New()
	src := Record{"x": 1.0}
	require.NoError(t, tbl.Append(Row{Index: 0, Values: src}))

	src["x"] = 5.0
	rows := tbl.Rows()
	rows[0].Values["x"] = 7.0

	rec, _ := tbl.Get(0)
	assert.Equal(t, 1.0, rec["x"])
}

func TestTable_ColumnsFirstSeenOrder(t *testing.T) {
	tbl := New()
	tbl.AppendColumns("x2", "x1")
	require.NoError(t, tbl.Append(Row{Index: 0, Values: Record{"x1": 1.0, "x2": 2.0, "y": 3.0}}))
	require.NoError(t, tbl.Append(Row{Index: 1, Values: Record{ErrorFlagColumn: true}}))

	assert.Equal(t, []string{"x2", "x1", "y", ErrorFlagColumn}, tbl.Columns())
}

func TestTable_Remove(t *testing.T) {
	tbl := New()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, tbl.Append(Row{Index: i, Values: Record{"x": float64(i)}}))
	}

	tbl.Remove(1, 3, 42)

	assert.Equal(t, []int64{0, 2, 4}, tbl.Indices())
	assert.False(t, tbl.Has(1))
	assert.True(t, tbl.Has(2))
	assert.Equal(t, []string{"x"}, tbl.Columns())
}

func TestTable_SelectKeepsRequestedOrder(t *testing.T) {
	tbl := New()
	for i := int64(0); i < 3; i++ {
		require.NoError(t, tbl.Append(Row{Index: i, Values: Record{"x": float64(i)}}))
	}

	rows := tbl.Select(2, 0, 9)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].Index)
	assert.Equal(t, int64(0), rows[1].Index)
}

func TestTable_FloatMissingIsNaN(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Append(
		Row{Index: 0, Values: Record{"y": 1}},
		Row{Index: 1, Values: Record{"y": "oops"}},
		Row{Index: 2, Values: Record{}},
		Row{Index: 3, Values: Record{"y": json.Number("2.5")}},
	))

	got := tbl.Float("y")
	require.Len(t, got, 4)
	assert.Equal(t, 1.0, got[0])
	assert.True(t, math.IsNaN(got[1]))
	assert.True(t, math.IsNaN(got[2]))
	assert.Equal(t, 2.5, got[3])
}

func TestTable_NilSafe(t *testing.T) {
	var tbl *Table
	assert.Equal(t, 0, tbl.Len())
	assert.Nil(t, tbl.Rows())
	assert.False(t, tbl.Has(0))
}

func TestToFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{int64(-3), -3, true},
		{7, 7, true},
		{true, 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
	}
	for _, tc := range cases {
		got, ok := ToFloat(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}
