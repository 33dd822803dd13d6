package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/xopt/internal/table"
)

// DefaultMaxWorkers is the pool capacity when none is configured.
const DefaultMaxWorkers = 1

// Func evaluates one input row and returns its outputs.
type Func func(ctx context.Context, inputs table.Record) (table.Record, error)

// Pool runs a Func on goroutines, at most MaxWorkers at a time.
//
// Each submitted row resolves independently. Errors are wrapped with a stack
// and panics are recovered, so every failure carries a trace.
type Pool struct {
	fn         Func
	name       string
	maxWorkers int
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMaxWorkers sets the concurrency capacity.
func WithMaxWorkers(n int) PoolOption {
	return func(p *Pool) {
		p.maxWorkers = n
	}
}

// WithName labels the pool in logs.
func WithName(name string) PoolOption {
	return func(p *Pool) {
		p.name = name
	}
}

// WithPoolLogger overrides the logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// NewPool creates a pool around fn.
func NewPool(fn Func, opts ...PoolOption) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("evaluator function is required")
	}
	p := &Pool{
		fn:         fn,
		maxWorkers: DefaultMaxWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxWorkers < 1 {
		return nil, fmt.Errorf("max workers must be >= 1, got %d", p.maxWorkers)
	}
	p.sem = semaphore.NewWeighted(int64(p.maxWorkers))
	return p, nil
}

// Name returns the label set with WithName.
func (p *Pool) Name() string {
	return p.name
}

// MaxWorkers implements Evaluator.
func (p *Pool) MaxWorkers() int {
	return p.maxWorkers
}

// Submit implements Evaluator. Rows queue behind the semaphore; Submit itself
// never blocks on evaluation.
func (p *Pool) Submit(ctx context.Context, rows []table.Row) (map[int64]Handle, error) {
	handles := make(map[int64]Handle, len(rows))
	for _, row := range rows {
		if _, dup := handles[row.Index]; dup {
			return nil, fmt.Errorf("duplicate row index %d in batch", row.Index)
		}
		handles[row.Index] = nil
	}

	for _, row := range rows {
		f := newFuture()
		handles[row.Index] = f
		go p.run(ctx, row, f)
	}

	p.logger.Debug("rows submitted",
		"evaluator", p.name,
		"rows", len(rows),
		"max_workers", p.maxWorkers,
	)
	return handles, nil
}

func (p *Pool) run(ctx context.Context, row table.Row, f *future) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		f.resolve(failure(errors.Wrap(err, "waiting for worker")))
		return
	}
	defer p.sem.Release(1)

	f.resolve(p.call(ctx, row))
}

// call invokes fn, converting errors and panics into failure results.
func (p *Pool) call(ctx context.Context, row table.Row) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			// errors.Errorf records the stack of the panicking goroutine.
			res = failure(errors.Errorf("evaluator panic: %v", r))
		}
		if res.Failed() {
			p.logger.Debug("row evaluation failed",
				"evaluator", p.name,
				"ix", row.Index,
				"error", res.Err,
			)
		}
	}()

	out, err := p.fn(ctx, row.Values.Clone())
	if err != nil {
		return failure(errors.WithStack(err))
	}
	if out == nil {
		out = table.Record{}
	}
	return Result{Output: out.Clone()}
}

func failure(err error) Result {
	return Result{Err: err, Trace: fmt.Sprintf("%+v", err)}
}
