// Package xopt is the optimization orchestrator.
//
// An Xopt drives a closed loop: ask the generator for candidates, submit them
// to the evaluator, wait for completions, merge resolved rows into the
// observation table and hand them back to the generator.
//
// Every submitted row gets a run-wide index. Until merged, a row lives in the
// pending table and has a handle in the in-flight map; the two always have
// the same keys. Merging moves the row into the observation table, which is
// append-only and keyed by index, so completions may arrive in any order.
//
// Thread-safety: Xopt is single-writer. SubmitCandidates, Step,
// MergeResolved and Run must be called from one goroutine. Stop, Status and
// LastIndex are safe from any goroutine.
package xopt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/xopt/internal/evaluator"
	"github.com/roach88/xopt/internal/generator"
	"github.com/roach88/xopt/internal/table"
	"github.com/roach88/xopt/internal/vocs"
)

// Status is the run state.
type Status int32

const (
	StatusRunning Status = iota
	StatusDone
)

func (s Status) String() string {
	if s == StatusDone {
		return "done"
	}
	return "running"
}

// Xopt is the orchestrator.
type Xopt struct {
	gen  generator.Generator
	eval evaluator.Evaluator
	vocs *vocs.VOCS
	opts Options

	data    *table.Table
	newData *table.Table
	pending *table.Table
	handles map[int64]evaluator.Handle
	counter *indexCounter

	unfinished int
	submitted  int
	status     atomic.Int32

	runID      string
	logger     *slog.Logger
	registerer prometheus.Registerer
	metrics    *metrics
	recorder   Recorder
	afterStep  func(context.Context, *Xopt) error
	seed       []table.Row
	reserved   int64
}

// New creates an orchestrator. Collaborators are checked by Step, not here,
// so a partially configured Xopt can still be inspected.
func New(gen generator.Generator, eval evaluator.Evaluator, v *vocs.VOCS, opts Options, options ...Option) (*Xopt, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	x := &Xopt{
		gen:      gen,
		eval:     eval,
		vocs:     v,
		opts:     opts,
		data:     table.New(),
		newData:  table.New(),
		pending:  table.New(),
		handles:  make(map[int64]evaluator.Handle),
		counter:  newIndexCounter(-1),
		logger:   slog.Default(),
		reserved: -1,
	}
	for _, opt := range options {
		opt(x)
	}

	if x.runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		x.runID = id.String()
	}
	if x.registerer == nil {
		x.registerer = prometheus.NewRegistry()
	}
	m, err := newMetrics(x.registerer, x.runID)
	if err != nil {
		return nil, err
	}
	x.metrics = m

	if len(x.seed) > 0 {
		if err := x.loadSeed(); err != nil {
			return nil, err
		}
	}
	if x.reserved > x.counter.Last() {
		x.counter = newIndexCounter(x.reserved)
	}
	return x, nil
}

func (x *Xopt) loadSeed() error {
	if err := x.data.Append(x.seed...); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}
	last := x.data.Indices()[x.data.Len()-1]
	x.counter = newIndexCounter(last)
	if x.gen != nil {
		if err := x.gen.AddData(x.data.Rows()); err != nil {
			return err
		}
	}
	x.seed = nil
	return nil
}

// checkComponents fails fast when a collaborator is missing.
func (x *Xopt) checkComponents() error {
	if x.gen == nil {
		return NewConfigurationError("generator", "not configured")
	}
	if x.eval == nil {
		return NewConfigurationError("evaluator", "not configured")
	}
	if x.vocs == nil {
		return NewConfigurationError("vocs", "not configured")
	}
	if err := x.vocs.Validate(); err != nil {
		return NewConfigurationError("vocs", err.Error())
	}
	if x.eval.MaxWorkers() < 1 {
		return NewConfigurationError("evaluator", fmt.Sprintf("max workers must be >= 1, got %d", x.eval.MaxWorkers()))
	}
	return nil
}

// SubmitCandidates assigns the next indices to records and submits them to
// the evaluator. On error nothing is recorded and the counter is unchanged.
func (x *Xopt) SubmitCandidates(ctx context.Context, records []table.Record) error {
	if len(records) == 0 {
		return nil
	}
	if x.eval == nil {
		return NewConfigurationError("evaluator", "not configured")
	}

	first := x.counter.Peek()
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		rows[i] = table.Row{Index: first + int64(i), Values: rec.Clone()}
	}

	if ir, ok := x.recorder.(IndexRecorder); ok {
		if err := ir.RecordAssigned(ctx, x.runID, first+int64(len(rows))-1); err != nil {
			return fmt.Errorf("record assigned indices: %w", err)
		}
	}

	handles, err := x.eval.Submit(ctx, rows)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if handles[row.Index] == nil {
			return fmt.Errorf("evaluator returned no handle for row %d", row.Index)
		}
	}

	if err := x.pending.Append(rows...); err != nil {
		return err
	}
	for _, row := range rows {
		x.handles[row.Index] = handles[row.Index]
	}
	x.counter.Advance(len(rows))
	x.submitted += len(rows)

	x.metrics.submitted.Add(float64(len(rows)))
	x.metrics.inFlight.Set(float64(len(x.handles)))
	x.logger.Debug("candidates submitted",
		"run_id", x.runID,
		"first_ix", first,
		"count", len(rows),
		"in_flight", len(x.handles),
	)
	return nil
}

// requestSize is how many candidates the next step asks for.
func (x *Xopt) requestSize() int {
	capacity := x.eval.MaxWorkers()
	n := capacity
	if x.opts.Asynch {
		// More rows can be in flight than capacity if it shrank.
		n = max(0, capacity-x.unfinished)
	}
	if x.opts.MaxEvaluations > 0 {
		n = min(n, max(0, x.opts.MaxEvaluations-x.submitted))
	}
	return n
}

// Step runs one optimization cycle.
//
// Timeouts are not errors: a step that times out merges what resolved and
// leaves the rest in flight. Generator and evaluator errors are returned as
// is. In strict mode the first failed row aborts the step before merging.
func (x *Xopt) Step(ctx context.Context) error {
	if err := x.checkComponents(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { x.metrics.stepDuration.Observe(time.Since(start).Seconds()) }()

	if n := x.requestSize(); n > 0 {
		candidates, err := x.gen.Generate(n)
		if err != nil {
			return err
		}
		if err := x.SubmitCandidates(ctx, candidates); err != nil {
			return err
		}
	}

	mode := evaluator.WaitAll
	if x.opts.Asynch {
		mode = evaluator.WaitAny
	}
	done, pending, err := evaluator.Wait(ctx, x.inFlight(), x.opts.Timeout, mode)
	if err != nil {
		return err
	}
	x.logger.Debug("wait finished",
		"run_id", x.runID,
		"mode", mode.String(),
		"done", done,
		"pending", pending,
	)

	// Snapshot once so strict checking and merging see the same rows.
	ixs := x.resolved()
	if x.opts.Strict {
		if err := x.firstFailure(ixs); err != nil {
			return err
		}
	}

	if _, err := x.merge(ctx, ixs); err != nil {
		return err
	}
	x.unfinished = len(x.handles)
	x.updateStatus()
	return nil
}

// firstFailure returns the lowest-index failure among ixs, if any.
func (x *Xopt) firstFailure(ixs []int64) error {
	for _, ix := range ixs {
		res := x.handles[ix].Result()
		if res.Failed() {
			return &EvaluationError{Index: ix, Err: res.Err, Trace: res.Trace}
		}
	}
	return nil
}

// resolved lists indices of completed handles in ascending order.
func (x *Xopt) resolved() []int64 {
	var out []int64
	for ix, h := range x.handles {
		if evaluator.IsDone(h) {
			out = append(out, ix)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (x *Xopt) inFlight() []evaluator.Handle {
	out := make([]evaluator.Handle, 0, len(x.handles))
	for _, h := range x.handles {
		out = append(out, h)
	}
	return out
}

// MergeResolved moves every resolved row into the observation table and
// forwards the batch to the generator. Returns the number of rows merged.
// With nothing resolved it changes nothing.
func (x *Xopt) MergeResolved(ctx context.Context) (int, error) {
	return x.merge(ctx, x.resolved())
}

// merge merges the rows at ixs, which must all be resolved, in ascending
// order.
func (x *Xopt) merge(ctx context.Context, ixs []int64) (int, error) {
	if len(ixs) == 0 {
		return 0, nil
	}

	inputs := x.pending.Select(ixs...)
	batch := make([]table.Row, len(inputs))
	var outputCols []string
	seenCol := make(map[string]bool)
	failures := 0

	for i, row := range inputs {
		res := x.handles[row.Index].Result()
		rec := row.Values
		if res.Failed() {
			// Partial output from a failed row is discarded.
			rec[table.ErrorFlagColumn] = true
			rec[table.ErrorMessageColumn] = res.Message()
			failures++
		} else {
			for _, name := range sortedKeys(res.Output) {
				rec[name] = res.Output[name]
				if !seenCol[name] {
					seenCol[name] = true
					outputCols = append(outputCols, name)
				}
			}
			rec[table.ErrorFlagColumn] = false
			rec[table.ErrorMessageColumn] = ""
		}
		batch[i] = table.Row{Index: row.Index, Values: rec}
	}

	columns := x.pending.Columns()
	for _, name := range outputCols {
		if !x.pending.HasColumn(name) {
			columns = append(columns, name)
		}
	}
	columns = append(columns, table.ErrorFlagColumn, table.ErrorMessageColumn)

	newData := table.New()
	newData.AppendColumns(columns...)
	if err := newData.Append(batch...); err != nil {
		return 0, err
	}
	x.data.AppendColumns(columns...)
	if err := x.data.Append(batch...); err != nil {
		return 0, err
	}

	x.pending.Remove(ixs...)
	for _, ix := range ixs {
		delete(x.handles, ix)
	}
	x.newData = newData

	x.metrics.merged.WithLabelValues("success").Add(float64(len(batch) - failures))
	x.metrics.merged.WithLabelValues("failure").Add(float64(failures))
	x.metrics.inFlight.Set(float64(len(x.handles)))
	x.logger.Debug("rows merged",
		"run_id", x.runID,
		"count", len(batch),
		"failures", failures,
		"total", x.data.Len(),
	)

	if x.gen != nil {
		if err := x.gen.AddData(newData.Rows()); err != nil {
			return len(batch), err
		}
	}
	if x.recorder != nil {
		if err := x.recorder.RecordBatch(ctx, x.runID, columns, newData.Rows()); err != nil {
			return len(batch), fmt.Errorf("record batch: %w", err)
		}
	}
	return len(batch), nil
}

func (x *Xopt) updateStatus() {
	if len(x.handles) > 0 {
		return
	}
	if f, ok := x.gen.(generator.Finisher); ok && f.Done() {
		x.logger.Info("generator finished", "run_id", x.runID, "evaluations", x.submitted)
		x.Stop()
		return
	}
	if x.opts.MaxEvaluations > 0 && x.submitted >= x.opts.MaxEvaluations {
		x.logger.Info("evaluation budget reached", "run_id", x.runID, "evaluations", x.submitted)
		x.Stop()
	}
}

// Run steps until the status is done. A step that neither submits nor has
// anything in flight ends the run, since nothing could change afterwards.
func (x *Xopt) Run(ctx context.Context) error {
	x.logger.Info("run starting",
		"run_id", x.runID,
		"asynch", x.opts.Asynch,
		"strict", x.opts.Strict,
	)
	for x.Status() != StatusDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := x.submitted
		if err := x.Step(ctx); err != nil {
			return err
		}
		if x.afterStep != nil {
			if err := x.afterStep(ctx, x); err != nil {
				return err
			}
		}
		if x.submitted == before && len(x.handles) == 0 && x.Status() != StatusDone {
			x.logger.Info("generator proposed no candidates", "run_id", x.runID)
			x.Stop()
		}
	}
	x.logger.Info("run finished",
		"run_id", x.runID,
		"evaluations", x.submitted,
		"rows", x.data.Len(),
	)
	return nil
}

// Stop marks the run done. Run returns after the current step.
func (x *Xopt) Stop() {
	x.status.Store(int32(StatusDone))
}

// Status returns the run state.
func (x *Xopt) Status() Status {
	return Status(x.status.Load())
}

// Data returns the observation table. Callers must not modify it.
func (x *Xopt) Data() *table.Table { return x.data }

// NewData returns the most recent merge batch.
func (x *Xopt) NewData() *table.Table { return x.newData }

// Pending returns the submitted, not yet merged rows.
func (x *Xopt) Pending() *table.Table { return x.pending }

// InFlight returns the indices with outstanding handles, ascending.
func (x *Xopt) InFlight() []int64 {
	out := make([]int64, 0, len(x.handles))
	for ix := range x.handles {
		out = append(out, ix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Unfinished is the number of handles left unresolved by the last step.
func (x *Xopt) Unfinished() int { return x.unfinished }

// LastIndex is the most recently assigned row index, -1 before any.
func (x *Xopt) LastIndex() int64 { return x.counter.Last() }

// Submitted is the number of rows submitted by this orchestrator.
func (x *Xopt) Submitted() int { return x.submitted }

func (x *Xopt) VOCS() *vocs.VOCS { return x.vocs }

func (x *Xopt) Generator() generator.Generator { return x.gen }

func (x *Xopt) Evaluator() evaluator.Evaluator { return x.eval }

func (x *Xopt) Options() Options { return x.opts }

// RunID identifies this run in logs and the observation store.
func (x *Xopt) RunID() string { return x.runID }

func sortedKeys(r table.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
