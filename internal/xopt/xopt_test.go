package xopt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xopt/internal/evaluator"
	"github.com/roach88/xopt/internal/table"
	"github.com/roach88/xopt/internal/testutil"
	"github.com/roach88/xopt/internal/vocs"
)

var errBoom = errors.New("boom")

func testVOCS() *vocs.VOCS {
	return &vocs.VOCS{
		Variables:  map[string]vocs.Bounds{"x": {0, 1000}},
		Objectives: map[string]vocs.Direction{"y": vocs.Minimize},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestXopt(t *testing.T, gen *testutil.SequenceGenerator, eval evaluator.Evaluator, opts Options, extra ...Option) *Xopt {
	t.Helper()
	options := append([]Option{WithLogger(quietLogger()), WithRunID("test-run")}, extra...)
	x, err := New(gen, eval, testVOCS(), opts, options...)
	require.NoError(t, err)
	return x
}

// scripted resolves row 0 with y=1.0 and fails every other row.
func scripted(workers int) *testutil.FuncEvaluator {
	return &testutil.FuncEvaluator{
		Workers: workers,
		Fn: func(row table.Row) evaluator.Result {
			if row.Index == 0 {
				return evaluator.Result{Output: table.Record{"y": 1.0}}
			}
			return evaluator.Result{Err: errBoom, Trace: "trace: boom"}
		},
	}
}

func succeedAll(workers int) *testutil.FuncEvaluator {
	return &testutil.FuncEvaluator{
		Workers: workers,
		Fn: func(row table.Row) evaluator.Result {
			x, _ := row.Values.Float("x")
			return evaluator.Result{Output: table.Record{"y": x * x}}
		},
	}
}

func records(xs ...float64) []table.Record {
	out := make([]table.Record, len(xs))
	for i, x := range xs {
		out[i] = table.Record{"x": x}
	}
	return out
}

// assertBookkeeping checks that pending and handle keys agree and that
// pending plus observed rows cover 0..LastIndex exactly once.
func assertBookkeeping(t *testing.T, x *Xopt) {
	t.Helper()
	assert.Equal(t, x.Pending().Indices(), x.InFlight(), "pending keys must equal handle keys")

	seen := make(map[int64]int)
	for _, ix := range x.Pending().Indices() {
		seen[ix]++
	}
	for _, ix := range x.Data().Indices() {
		seen[ix]++
	}
	for ix := int64(0); ix <= x.LastIndex(); ix++ {
		assert.Equal(t, 1, seen[ix], "index %d", ix)
	}
	assert.Len(t, seen, int(x.LastIndex()+1))
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(nil, nil, nil, Options{Timeout: -time.Second})
	require.Error(t, err)
	assert.True(t, IsOptionsError(err))

	_, err = New(nil, nil, nil, Options{MaxEvaluations: -1})
	assert.True(t, IsOptionsError(err))
}

func TestNew_DefaultRunID(t *testing.T) {
	x, err := New(nil, nil, nil, Options{}, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Len(t, x.RunID(), 36)
	assert.Equal(t, int64(-1), x.LastIndex())
	assert.Equal(t, StatusRunning, x.Status())
}

func TestNew_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	build := func(runID string) (*Xopt, error) {
		return New(&testutil.SequenceGenerator{Limit: 2}, succeedAll(2), testVOCS(), Options{},
			WithLogger(quietLogger()), WithRunID(runID), WithMetrics(reg))
	}

	a, err := build("run-a")
	require.NoError(t, err)
	b, err := build("run-b")
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	n, err := promtest.GatherAndCount(reg, "xopt_rows_submitted_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, promtest.ToFloat64(a.metrics.submitted))
	assert.Equal(t, 0.0, promtest.ToFloat64(b.metrics.submitted))

	// The same run registered again shares its collectors.
	again, err := build("run-a")
	require.NoError(t, err)
	assert.Same(t, a.metrics.merged, again.metrics.merged)
	assert.Equal(t, 2.0, promtest.ToFloat64(again.metrics.submitted))

	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "xopt_rows_in_flight",
		Help:        "something else",
		ConstLabels: prometheus.Labels{"run_id": "run-c"},
	}))
	_, err = build("run-c")
	assert.ErrorContains(t, err, "register metrics")
}

func TestStep_ConfigurationErrors(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(1)

	cases := map[string]func() (*Xopt, error){
		"no generator": func() (*Xopt, error) { return New(nil, eval, testVOCS(), Options{}) },
		"no evaluator": func() (*Xopt, error) { return New(gen, nil, testVOCS(), Options{}) },
		"no vocs":      func() (*Xopt, error) { return New(gen, eval, nil, Options{}) },
		"invalid vocs": func() (*Xopt, error) { return New(gen, eval, &vocs.VOCS{}, Options{}) },
		"zero workers": func() (*Xopt, error) {
			return New(gen, testutil.NewManualEvaluator(0), testVOCS(), Options{})
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			x, err := build()
			require.NoError(t, err)
			err = x.Step(context.Background())
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err), err.Error())
		})
	}
	assert.Empty(t, gen.Requests, "nothing may be generated before the check")
	assert.Empty(t, eval.Submitted())
}

func TestSubmitCandidates_ContiguousIndices(t *testing.T) {
	eval := testutil.NewManualEvaluator(4)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{})
	ctx := context.Background()

	require.NoError(t, x.SubmitCandidates(ctx, records(1, 2)))
	require.NoError(t, x.SubmitCandidates(ctx, nil))
	require.NoError(t, x.SubmitCandidates(ctx, records(3, 4, 5)))

	assert.Equal(t, int64(4), x.LastIndex())
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, x.InFlight())
	assert.Equal(t, 5, x.Submitted())
	assertBookkeeping(t, x)

	sub := eval.Submitted()
	require.Len(t, sub, 5)
	assert.Equal(t, int64(3), sub[3].Index)
	assert.Equal(t, 4.0, sub[3].Values["x"])
}

func TestSubmitCandidates_EvaluatorErrorLeavesStateUnchanged(t *testing.T) {
	eval := testutil.NewManualEvaluator(2)
	eval.FailSubmit(errBoom)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{})

	err := x.SubmitCandidates(context.Background(), records(1))
	assert.Equal(t, errBoom, err)
	assert.Equal(t, int64(-1), x.LastIndex())
	assert.Equal(t, 0, x.Pending().Len())
	assert.Empty(t, x.InFlight())
}

func TestSubmitCandidates_DoesNotAliasCallerRecords(t *testing.T) {
	eval := testutil.NewManualEvaluator(1)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{})

	recs := records(7)
	require.NoError(t, x.SubmitCandidates(context.Background(), recs))
	recs[0]["x"] = -1.0

	rec, ok := x.Pending().Get(0)
	require.True(t, ok)
	assert.Equal(t, 7.0, rec["x"])
}

func TestMergeResolved_NoopWhenNothingResolved(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(2)
	x := newTestXopt(t, gen, eval, Options{})
	ctx := context.Background()

	require.NoError(t, x.SubmitCandidates(ctx, records(1, 2)))
	eval.Succeed(0, table.Record{"y": 1.0})
	n, err := x.MergeResolved(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	before := x.NewData()

	for i := 0; i < 2; i++ {
		n, err := x.MergeResolved(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
	assert.Equal(t, 1, x.Data().Len())
	assert.Equal(t, []int64{1}, x.Pending().Indices())
	assert.Equal(t, []int64{1}, x.InFlight())
	assert.Same(t, before, x.NewData(), "an empty merge keeps the previous batch")
	assert.Len(t, gen.Batches, 1)
}

func TestMergeResolved_OutOfOrderCompletion(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(3)
	x := newTestXopt(t, gen, eval, Options{})
	ctx := context.Background()

	require.NoError(t, x.SubmitCandidates(ctx, records(10, 11, 12)))

	eval.Succeed(2, table.Record{"y": 12.0})
	_, err := x.MergeResolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, x.Data().Indices())
	assertBookkeeping(t, x)

	eval.Succeed(1, table.Record{"y": 11.0})
	eval.Succeed(0, table.Record{"y": 10.0})
	_, err = x.MergeResolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, x.Data().Indices())
	assert.Equal(t, []int64{0, 1}, x.NewData().Indices())
	assert.Equal(t, []int64{2, 0, 1}, gen.Seen())
	assert.Empty(t, x.InFlight())
	assertBookkeeping(t, x)
}

func TestMergeResolved_ErrorRows(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(2)
	x := newTestXopt(t, gen, eval, Options{})
	ctx := context.Background()

	require.NoError(t, x.SubmitCandidates(ctx, records(1, 2)))
	eval.Succeed(0, table.Record{"y": 1.0, "obs": "ok"})
	eval.FailWithOutput(1, errBoom, table.Record{"y": 99.0})

	_, err := x.MergeResolved(ctx)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"x", "obs", "y", table.ErrorFlagColumn, table.ErrorMessageColumn},
		x.NewData().Columns(),
	)

	good, _ := x.Data().Get(0)
	assert.Equal(t, false, good[table.ErrorFlagColumn])
	assert.Equal(t, "", good[table.ErrorMessageColumn])
	assert.Equal(t, 1.0, good["y"])

	bad, _ := x.Data().Get(1)
	assert.Equal(t, true, bad[table.ErrorFlagColumn])
	assert.Equal(t, "trace: boom", bad[table.ErrorMessageColumn])
	assert.Equal(t, 2.0, bad["x"])
	_, hasY := bad["y"]
	assert.False(t, hasY, "partial output of a failed row is discarded")

	require.Len(t, gen.Batches, 1)
	assert.Len(t, gen.Batches[0], 2)
}

func TestStep_SynchronousScenario(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	reg := prometheus.NewRegistry()
	x := newTestXopt(t, gen, scripted(2), Options{}, WithMetrics(reg))

	require.NoError(t, x.Step(context.Background()))

	assert.Equal(t, []int{2}, gen.Requests)
	require.Equal(t, 2, x.Data().Len())
	assert.Equal(t, 0, x.Unfinished())

	a, _ := x.Data().Get(0)
	assert.Equal(t, false, a[table.ErrorFlagColumn])
	assert.Equal(t, 1.0, a["y"])

	b, _ := x.Data().Get(1)
	assert.Equal(t, true, b[table.ErrorFlagColumn])
	assert.NotEmpty(t, b[table.ErrorMessageColumn])

	assert.Equal(t, 2.0, promtest.ToFloat64(x.metrics.submitted))
	assert.Equal(t, 1.0, promtest.ToFloat64(x.metrics.merged.WithLabelValues("success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(x.metrics.merged.WithLabelValues("failure")))
	assert.Equal(t, 0.0, promtest.ToFloat64(x.metrics.inFlight))
}

func TestStep_StrictAbortsBeforeMerge(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	x := newTestXopt(t, gen, scripted(2), Options{Strict: true})

	err := x.Step(context.Background())
	require.Error(t, err)
	assert.True(t, IsEvaluationError(err))
	assert.ErrorIs(t, err, errBoom)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, int64(1), evalErr.Index)
	assert.Equal(t, "trace: boom", evalErr.Trace)

	assert.Equal(t, 0, x.Data().Len())
	assert.Empty(t, gen.Batches)
	assertBookkeeping(t, x)
}

func TestStep_SynchronousTimeout(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(2)
	x := newTestXopt(t, gen, eval, Options{Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, x.Step(ctx))
	assert.Equal(t, 0, x.Data().Len())
	assert.Equal(t, 2, x.Unfinished())

	eval.Succeed(0, table.Record{"y": 0.0})
	eval.Succeed(1, table.Record{"y": 1.0})

	// Synchronous mode always asks for full capacity.
	require.NoError(t, x.Step(ctx))
	assert.Equal(t, []int{2, 2}, gen.Requests)
	assert.Equal(t, []int64{0, 1}, x.Data().Indices())
	assert.Equal(t, 2, x.Unfinished())
	assertBookkeeping(t, x)
}

func TestStep_AsynchronousTopsUpCapacity(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(3)
	x := newTestXopt(t, gen, eval, Options{Asynch: true, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, x.Step(ctx))
	assert.Equal(t, 3, x.Unfinished())

	eval.Succeed(1, table.Record{"y": 1.0})
	require.NoError(t, x.Step(ctx))
	assert.Equal(t, []int{3}, gen.Requests, "a full pipeline requests nothing")
	assert.Equal(t, []int64{1}, x.Data().Indices())
	assert.Equal(t, 2, x.Unfinished())

	require.NoError(t, x.Step(ctx))
	assert.Equal(t, []int{3, 1}, gen.Requests)
	assert.Equal(t, 3, x.Unfinished())
	assertBookkeeping(t, x)
}

func TestStep_AsynchronousReturnsOnFirstCompletion(t *testing.T) {
	eval := testutil.NewManualEvaluator(2)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{Asynch: true})

	go func() {
		for len(eval.Outstanding()) < 2 {
			time.Sleep(time.Millisecond)
		}
		eval.Succeed(0, table.Record{"y": 0.0})
	}()

	require.NoError(t, x.Step(context.Background()))
	assert.Equal(t, []int64{0}, x.Data().Indices())
	assert.Equal(t, 1, x.Unfinished())
}

func TestStep_AsynchronousCapacityClampsAtZero(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(3)
	x := newTestXopt(t, gen, eval, Options{Asynch: true, Timeout: 5 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, x.Step(ctx))
	eval.SetMaxWorkers(1)
	require.NoError(t, x.Step(ctx))

	assert.Equal(t, []int{3}, gen.Requests)
	assert.Equal(t, 3, x.Unfinished())
}

func TestStep_PropagatesCollaboratorErrors(t *testing.T) {
	gen := &testutil.SequenceGenerator{GenerateErr: errBoom}
	x := newTestXopt(t, gen, succeedAll(1), Options{})
	assert.Equal(t, errBoom, x.Step(context.Background()))

	eval := testutil.NewManualEvaluator(1)
	eval.FailSubmit(errBoom)
	x = newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{})
	assert.Equal(t, errBoom, x.Step(context.Background()))

	gen = &testutil.SequenceGenerator{AddErr: errBoom}
	x = newTestXopt(t, gen, succeedAll(1), Options{})
	assert.Equal(t, errBoom, x.Step(context.Background()))
	assert.Equal(t, 1, x.Data().Len(), "rows stay merged when the generator rejects them")
	assertBookkeeping(t, x)
}

func TestStep_ContextCancelled(t *testing.T) {
	eval := testutil.NewManualEvaluator(1)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, x.Step(ctx), context.Canceled)
}

func TestRun_UntilGeneratorFinishes(t *testing.T) {
	gen := &testutil.SequenceGenerator{Limit: 5}
	x := newTestXopt(t, gen, succeedAll(2), Options{})

	require.NoError(t, x.Run(context.Background()))
	assert.Equal(t, StatusDone, x.Status())
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, x.Data().Indices())
	assert.Equal(t, []int{2, 2, 2}, gen.Requests)
	assertBookkeeping(t, x)
}

func TestRun_MaxEvaluations(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	x := newTestXopt(t, gen, succeedAll(2), Options{MaxEvaluations: 3})

	require.NoError(t, x.Run(context.Background()))
	assert.Equal(t, 3, x.Data().Len())
	assert.Equal(t, []int{2, 1}, gen.Requests)
	assert.Equal(t, StatusDone, x.Status())
}

func TestRun_StopFromEvaluator(t *testing.T) {
	var x *Xopt
	eval := &testutil.FuncEvaluator{
		Workers: 2,
		Fn: func(row table.Row) evaluator.Result {
			if row.Index == 3 {
				x.Stop()
			}
			return evaluator.Result{Output: table.Record{"y": 0.0}}
		},
	}
	x = newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{})

	require.NoError(t, x.Run(context.Background()))
	assert.Equal(t, 4, x.Data().Len())
}

func TestRun_EndsWhenNothingIsProposed(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	x := newTestXopt(t, gen, succeedAll(2), Options{})
	gen.Limit = -1 // Generate returns nothing, Done stays false.

	require.NoError(t, x.Run(context.Background()))
	assert.Equal(t, StatusDone, x.Status())
	assert.Equal(t, 0, x.Data().Len())
}

func TestRun_ContextCancelled(t *testing.T) {
	x := newTestXopt(t, &testutil.SequenceGenerator{}, succeedAll(1), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, x.Run(ctx), context.Canceled)
}

func TestRun_AfterStep(t *testing.T) {
	var seen []int
	hook := func(_ context.Context, x *Xopt) error {
		seen = append(seen, x.Data().Len())
		return nil
	}
	x := newTestXopt(t, &testutil.SequenceGenerator{Limit: 5}, succeedAll(2), Options{}, WithAfterStep(hook))

	require.NoError(t, x.Run(context.Background()))
	assert.Equal(t, []int{2, 4, 5}, seen)
}

func TestRun_AfterStepErrorEndsRun(t *testing.T) {
	calls := 0
	hook := func(context.Context, *Xopt) error {
		calls++
		return errBoom
	}
	x := newTestXopt(t, &testutil.SequenceGenerator{Limit: 5}, succeedAll(2), Options{}, WithAfterStep(hook))

	assert.ErrorIs(t, x.Run(context.Background()), errBoom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, x.Data().Len())
}

func TestWithData_SeedsTableAndCounter(t *testing.T) {
	gen := &testutil.SequenceGenerator{}
	eval := testutil.NewManualEvaluator(1)
	seed := []table.Row{
		{Index: 0, Values: table.Record{"x": 1.0, "y": 1.0}},
		{Index: 5, Values: table.Record{"x": 2.0, "y": 4.0}},
	}
	x := newTestXopt(t, gen, eval, Options{}, WithData(seed))

	assert.Equal(t, int64(5), x.LastIndex())
	assert.Equal(t, []int64{0, 5}, gen.Seen())

	require.NoError(t, x.SubmitCandidates(context.Background(), records(3)))
	assert.Equal(t, []int64{6}, x.InFlight())

	_, err := New(gen, eval, testVOCS(), Options{}, WithLogger(quietLogger()),
		WithData([]table.Row{{Index: 1}, {Index: 1}}))
	assert.Error(t, err)
}

type recordedBatch struct {
	runID   string
	columns []string
	rows    []table.Row
}

type fakeRecorder struct {
	batches []recordedBatch
	err     error
}

func (r *fakeRecorder) RecordBatch(_ context.Context, runID string, columns []string, rows []table.Row) error {
	r.batches = append(r.batches, recordedBatch{runID: runID, columns: columns, rows: rows})
	return r.err
}

// indexRecorder also records index reservations.
type indexRecorder struct {
	fakeRecorder
	assigned  []int64
	assignErr error
}

func (r *indexRecorder) RecordAssigned(_ context.Context, _ string, last int64) error {
	if r.assignErr != nil {
		return r.assignErr
	}
	r.assigned = append(r.assigned, last)
	return nil
}

func TestWithLastIndex_SkipsReservedIndices(t *testing.T) {
	seed := []table.Row{
		{Index: 0, Values: table.Record{"x": 1.0, "y": 1.0}},
		{Index: 1, Values: table.Record{"x": 2.0, "y": 4.0}},
	}
	eval := testutil.NewManualEvaluator(2)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{}, WithData(seed), WithLastIndex(4))

	assert.Equal(t, int64(4), x.LastIndex())
	require.NoError(t, x.SubmitCandidates(context.Background(), records(1, 2)))
	assert.Equal(t, []int64{5, 6}, x.InFlight())

	// A reservation below the seeded rows does not move the counter back.
	x = newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{}, WithData(seed), WithLastIndex(0))
	assert.Equal(t, int64(1), x.LastIndex())
}

func TestIndexRecorder_ReservesBeforeSubmit(t *testing.T) {
	rec := &indexRecorder{}
	eval := testutil.NewManualEvaluator(3)
	x := newTestXopt(t, &testutil.SequenceGenerator{}, eval, Options{}, WithRecorder(rec))

	require.NoError(t, x.SubmitCandidates(context.Background(), records(1, 2, 3)))
	require.NoError(t, x.SubmitCandidates(context.Background(), records(4)))
	assert.Equal(t, []int64{2, 3}, rec.assigned)

	rec.assignErr = errBoom
	assert.ErrorIs(t, x.SubmitCandidates(context.Background(), records(5)), errBoom)
	assert.Equal(t, int64(3), x.LastIndex())
	assert.Len(t, eval.Submitted(), 4)
	assertBookkeeping(t, x)
}

func TestRecorder_ReceivesMergedBatches(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestXopt(t, &testutil.SequenceGenerator{}, scripted(2), Options{}, WithRecorder(rec))

	require.NoError(t, x.Step(context.Background()))
	require.Len(t, rec.batches, 1)
	assert.Equal(t, "test-run", rec.batches[0].runID)
	assert.Equal(t, []string{"x", "y", table.ErrorFlagColumn, table.ErrorMessageColumn}, rec.batches[0].columns)
	assert.Len(t, rec.batches[0].rows, 2)

	rec.err = errBoom
	assert.ErrorIs(t, x.Step(context.Background()), errBoom)
}

// TestBookkeeping_RandomInterleavings drives submits, resolutions and merges
// in a random order and checks the index invariants after every operation.
func TestBookkeeping_RandomInterleavings(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		gen := &testutil.SequenceGenerator{}
		eval := testutil.NewManualEvaluator(4)
		x := newTestXopt(t, gen, eval, Options{})
		ctx := context.Background()

		for op := 0; op < 60; op++ {
			switch rng.Intn(3) {
			case 0:
				n := rng.Intn(3)
				recs := make([]table.Record, n)
				for i := range recs {
					recs[i] = table.Record{"x": rng.Float64()}
				}
				require.NoError(t, x.SubmitCandidates(ctx, recs))
			case 1:
				if out := eval.Outstanding(); len(out) > 0 {
					ix := out[rng.Intn(len(out))]
					if rng.Intn(2) == 0 {
						eval.Succeed(ix, table.Record{"y": 1.0})
					} else {
						eval.Fail(ix, errBoom)
					}
				}
			case 2:
				_, err := x.MergeResolved(ctx)
				require.NoError(t, err)
			}
			assertBookkeeping(t, x)
		}

		for _, row := range x.Data().Rows() {
			failed := row.Values[table.ErrorFlagColumn].(bool)
			msg := row.Values[table.ErrorMessageColumn].(string)
			assert.Equal(t, failed, msg != "", "row %d", row.Index)
		}
	}
}
