// Package testutil provides deterministic collaborators for orchestrator
// tests: an evaluator whose handles resolve only when told to, and a
// generator that proposes predictable candidates and records what it sees.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/xopt/internal/evaluator"
	"github.com/roach88/xopt/internal/table"
)

// Handle is a manually resolved evaluator.Handle.
type Handle struct {
	once   sync.Once
	done   chan struct{}
	result evaluator.Result
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done implements evaluator.Handle.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result implements evaluator.Handle.
func (h *Handle) Result() evaluator.Result {
	<-h.done
	return h.result
}

// resolve completes the handle. Later calls are ignored.
func (h *Handle) resolve(r evaluator.Result) {
	h.once.Do(func() {
		h.result = r
		close(h.done)
	})
}

// ManualEvaluator records submissions and leaves every handle pending until
// the test resolves it with Succeed or Fail.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualEvaluator struct {
	mu        sync.Mutex
	workers   int
	handles   map[int64]*Handle
	submitted []table.Row
	submitErr error
}

// NewManualEvaluator creates an evaluator with the given capacity.
func NewManualEvaluator(workers int) *ManualEvaluator {
	return &ManualEvaluator{
		workers: workers,
		handles: make(map[int64]*Handle),
	}
}

// Submit implements evaluator.Evaluator.
func (e *ManualEvaluator) Submit(_ context.Context, rows []table.Row) (map[int64]evaluator.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitErr != nil {
		return nil, e.submitErr
	}
	out := make(map[int64]evaluator.Handle, len(rows))
	for _, row := range rows {
		if _, dup := e.handles[row.Index]; dup {
			return nil, fmt.Errorf("row %d submitted twice", row.Index)
		}
		h := newHandle()
		e.handles[row.Index] = h
		e.submitted = append(e.submitted, table.Row{Index: row.Index, Values: row.Values.Clone()})
		out[row.Index] = h
	}
	return out, nil
}

// MaxWorkers implements evaluator.Evaluator.
func (e *ManualEvaluator) MaxWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers
}

// SetMaxWorkers changes the capacity reported to the orchestrator.
func (e *ManualEvaluator) SetMaxWorkers(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workers = n
}

// FailSubmit makes every following Submit return err. nil clears it.
func (e *ManualEvaluator) FailSubmit(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitErr = err
}

// Succeed resolves row ix with output.
func (e *ManualEvaluator) Succeed(ix int64, output table.Record) {
	e.handle(ix).resolve(evaluator.Result{Output: output})
}

// Fail resolves row ix as failed. The trace is the error text prefixed
// with "trace: ".
func (e *ManualEvaluator) Fail(ix int64, err error) {
	e.handle(ix).resolve(evaluator.Result{Err: err, Trace: "trace: " + err.Error()})
}

// FailWithOutput resolves row ix as failed while carrying partial output.
func (e *ManualEvaluator) FailWithOutput(ix int64, err error, output table.Record) {
	e.handle(ix).resolve(evaluator.Result{Output: output, Err: err, Trace: "trace: " + err.Error()})
}

func (e *ManualEvaluator) handle(ix int64) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[ix]
	if !ok {
		panic(fmt.Sprintf("testutil: row %d was never submitted", ix))
	}
	return h
}

// Submitted returns copies of every submitted row, in submission order.
func (e *ManualEvaluator) Submitted() []table.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]table.Row, len(e.submitted))
	copy(out, e.submitted)
	return out
}

// Outstanding returns the unresolved row indices, ascending.
func (e *ManualEvaluator) Outstanding() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []int64
	for ix, h := range e.handles {
		if !evaluator.IsDone(h) {
			out = append(out, ix)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FuncEvaluator resolves every row synchronously inside Submit.
type FuncEvaluator struct {
	Workers int
	Fn      func(row table.Row) evaluator.Result
}

// Submit implements evaluator.Evaluator.
func (e *FuncEvaluator) Submit(_ context.Context, rows []table.Row) (map[int64]evaluator.Handle, error) {
	out := make(map[int64]evaluator.Handle, len(rows))
	for _, row := range rows {
		out[row.Index] = evaluator.Resolved(e.Fn(row))
	}
	return out, nil
}

// MaxWorkers implements evaluator.Evaluator.
func (e *FuncEvaluator) MaxWorkers() int { return e.Workers }
