// Package evaluator defines how candidate rows are turned into outputs.
//
// The orchestrator only sees the Evaluator interface: it submits a batch of
// indexed rows and gets back one Handle per row. How the work runs (local
// goroutines, subprocesses, a remote service) is the evaluator's business.
//
// Failures are values, not panics: a Handle resolves to a Result that either
// carries outputs or an error plus a captured trace.
package evaluator

import (
	"context"
	"time"

	"github.com/roach88/xopt/internal/table"
)

// Evaluator executes candidate rows.
type Evaluator interface {
	// Submit starts evaluating rows and returns a handle per row index.
	// ctx scopes the evaluations, which may outlive the call.
	Submit(ctx context.Context, rows []table.Row) (map[int64]Handle, error)

	// MaxWorkers is the concurrency capacity used to size each request.
	MaxWorkers() int
}

// Handle is a pending, eventually-resolved evaluation.
type Handle interface {
	// Done is closed once the result is available.
	Done() <-chan struct{}

	// Result returns the outcome, blocking until Done is closed.
	Result() Result
}

// Result is the outcome of one row evaluation.
type Result struct {
	Output table.Record
	Err    error
	// Trace is the captured failure trace; empty on success.
	Trace string
}

// Failed reports whether the evaluation failed.
func (r Result) Failed() bool { return r.Err != nil }

// Message returns the text recorded for a failed row. Falls back to the
// error text when no trace was captured.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	if r.Trace != "" {
		return r.Trace
	}
	if msg := r.Err.Error(); msg != "" {
		return msg
	}
	return "evaluation failed"
}

// Resolved returns a handle that is already complete.
func Resolved(r Result) Handle {
	f := newFuture()
	f.resolve(r)
	return f
}

// IsDone reports whether h has resolved without blocking.
func IsDone(h Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

type future struct {
	done   chan struct{}
	result Result
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// resolve must be called exactly once.
func (f *future) resolve(r Result) {
	f.result = r
	close(f.done)
}

func (f *future) Done() <-chan struct{} { return f.done }

func (f *future) Result() Result {
	<-f.done
	return f.result
}

// WaitMode selects when Wait returns.
type WaitMode int

const (
	// WaitAll returns once every handle has resolved.
	WaitAll WaitMode = iota
	// WaitAny returns once at least one handle has resolved.
	WaitAny
)

func (m WaitMode) String() string {
	if m == WaitAny {
		return "FIRST_COMPLETED"
	}
	return "ALL_COMPLETED"
}

// Wait blocks until the handles satisfy mode, timeout elapses, or ctx is
// cancelled. A zero timeout waits indefinitely. Running out of time is not
// an error: callers inspect done and pending.
func Wait(ctx context.Context, handles []Handle, timeout time.Duration, mode WaitMode) (done, pending int, err error) {
	if len(handles) == 0 {
		return 0, 0, nil
	}

	satisfied := func(done int) bool {
		if mode == WaitAny {
			return done > 0
		}
		return done == len(handles)
	}

	var outstanding []Handle
	for _, h := range handles {
		if IsDone(h) {
			done++
		} else {
			outstanding = append(outstanding, h)
		}
	}
	if satisfied(done) {
		return done, len(handles) - done, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	stop := make(chan struct{})
	defer close(stop)

	// Buffered so waiters never block after Wait has returned.
	resolved := make(chan struct{}, len(outstanding))
	for _, h := range outstanding {
		go func(h Handle) {
			select {
			case <-h.Done():
				resolved <- struct{}{}
			case <-stop:
			}
		}(h)
	}

wait:
	for !satisfied(done) {
		select {
		case <-resolved:
			done++
		case <-expired:
			break wait
		case <-ctx.Done():
			err = ctx.Err()
			break wait
		}
	}

	// Recount: more handles may have finished than we observed.
	done = 0
	for _, h := range handles {
		if IsDone(h) {
			done++
		}
	}
	return done, len(handles) - done, err
}
