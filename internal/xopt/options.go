package xopt

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/xopt/internal/table"
)

// Options is the run policy bundle.
type Options struct {
	// Asynch returns from each step as soon as one row resolves and only
	// tops up free capacity. Otherwise each step fills capacity and waits
	// for every in-flight row.
	Asynch bool

	// Timeout bounds the completion wait of a step. Zero waits forever.
	Timeout time.Duration

	// Strict aborts the step on the first failed row instead of recording
	// it as an error row.
	Strict bool

	// MaxEvaluations stops the run after this many submissions. Zero is
	// unlimited.
	MaxEvaluations int
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.Timeout < 0 {
		return NewOptionsError("timeout", "must be >= 0")
	}
	if o.MaxEvaluations < 0 {
		return NewOptionsError("max_evaluations", "must be >= 0")
	}
	return nil
}

// Recorder receives every merged batch, for example to persist it.
type Recorder interface {
	RecordBatch(ctx context.Context, runID string, columns []string, rows []table.Row) error
}

// IndexRecorder is implemented by recorders that also persist index
// assignments. It is called before rows are submitted, so indices handed to
// an evaluator are never assigned again when a run is resumed elsewhere.
type IndexRecorder interface {
	RecordAssigned(ctx context.Context, runID string, last int64) error
}

// Option configures an Xopt.
type Option func(*Xopt)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Xopt) {
		x.logger = l
	}
}

// WithMetrics registers run metrics with reg. Without it metrics go to a
// private registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(x *Xopt) {
		x.registerer = reg
	}
}

// WithRecorder sends merged batches to r.
func WithRecorder(r Recorder) Option {
	return func(x *Xopt) {
		x.recorder = r
	}
}

// WithRunID sets the run identifier. Default is a fresh UUIDv7.
func WithRunID(id string) Option {
	return func(x *Xopt) {
		x.runID = id
	}
}

// WithData seeds the observation table with completed rows, for resuming a
// run. New indices continue after the highest seeded index, and the rows
// are handed to the generator at construction.
func WithData(rows []table.Row) Option {
	return func(x *Xopt) {
		x.seed = rows
	}
}

// WithLastIndex makes new indices continue after ix even if rows up to ix
// were never observed, for example because they were in flight when a
// previous process stopped.
func WithLastIndex(ix int64) Option {
	return func(x *Xopt) {
		x.reserved = ix
	}
}

// WithAfterStep calls fn after every successful step of Run, for example to
// dump the run state. An error from fn ends the run.
func WithAfterStep(fn func(ctx context.Context, x *Xopt) error) Option {
	return func(x *Xopt) {
		x.afterStep = fn
	}
}
