// Package table holds the row-oriented data model shared by the orchestrator,
// generators and evaluators.
//
// A Table is keyed by a row index assigned at submission time. Indices are
// unique for the lifetime of a run and rows are never mutated once appended;
// completions can arrive out of submission order, so Append inserts by index
// rather than by arrival time.
//
// Columns are tracked in first-seen order so that a merged batch keeps its
// input columns ahead of its result columns.
package table
