package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/xopt/internal/blob"
	"github.com/roach88/xopt/internal/config"
	"github.com/roach88/xopt/internal/store"
	"github.com/roach88/xopt/internal/table"
	"github.com/roach88/xopt/internal/vocs"
	"github.com/roach88/xopt/internal/xopt"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database       string
	RunID          string
	Resume         string
	MaxEvaluations int
	DumpFile       string
	MetricsAddr    string

	// Registry overrides the metrics registry (for testing).
	Registry *prometheus.Registry
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID       string         `json:"run_id"`
	Evaluations int            `json:"evaluations"`
	Rows        int            `json:"rows"`
	Failures    int            `json:"failures"`
	LastIndex   int64          `json:"last_ix"`
	Interrupted bool           `json:"interrupted,omitempty"`
	BestIndex   *int64         `json:"best_ix,omitempty"`
	Best        map[string]any `json:"best,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run an optimization from a document",
		Long: `Build the orchestrator a run document describes and step it until the
generator is done, the evaluation budget is spent or the process is
interrupted.

With --db every merged batch is appended to a SQLite observation log, and
--resume continues a stored run from its observations.

Example:
  xopt run ./run.yaml
  xopt run --db ./xopt.db --max-evaluations 50 ./run.yaml
  xopt run --db ./xopt.db --resume 0190f6c2-... ./run.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimization(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite observation store")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run identifier (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "resume the stored run with this ID (requires --db)")
	cmd.Flags().IntVar(&opts.MaxEvaluations, "max-evaluations", 0, "stop after this many evaluations (overrides the document)")
	cmd.Flags().StringVar(&opts.DumpFile, "dump", "", "write the run document here after every step (overrides the document)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func runOptimization(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.newLogger()
	slog.SetDefault(logger)

	if opts.Resume != "" && opts.Database == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, errors.New("--resume requires --db"))
	}

	doc, err := loadDocument(formatter, path)
	if err != nil {
		return err
	}
	if opts.MaxEvaluations > 0 {
		doc.Xopt.MaxEvaluations = opts.MaxEvaluations
	}
	if opts.DumpFile != "" {
		doc.Xopt.DumpFile = opts.DumpFile
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}
	xopts := []xopt.Option{xopt.WithLogger(logger), xopt.WithMetrics(reg)}

	if opts.MetricsAddr != "" {
		srv, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeMetricsSetup, err)
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("error stopping metrics endpoint", "error", err)
			}
		}()
	}

	var st *store.Store
	if opts.Database != "" {
		logger.Info("opening observation store", "path", opts.Database)
		st, err = store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		xopts = append(xopts, xopt.WithRecorder(st))

		if opts.Resume != "" {
			data, err := st.ReadObservations(ctx, opts.Resume)
			if errors.Is(err, store.ErrRunNotFound) {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
			}
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, err)
			}
			run, err := st.ReadRun(ctx, opts.Resume)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, err)
			}
			logger.Info("resuming run", "run_id", opts.Resume, "rows", data.Len(), "last_ix", run.LastIndex)
			xopts = append(xopts,
				xopt.WithRunID(opts.Resume),
				xopt.WithData(data.Rows()),
				xopt.WithLastIndex(run.LastIndex),
			)
		}
	}
	if opts.RunID != "" && opts.Resume == "" {
		xopts = append(xopts, xopt.WithRunID(opts.RunID))
	}
	if doc.Xopt.DumpFile != "" {
		xopts = append(xopts, xopt.WithAfterStep(dumpAfterStep(doc.Xopt.DumpFile)))
	}

	x, err := config.Build(doc, filepath.Dir(path), xopts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBuildFailed, err)
	}

	if st != nil {
		raw, err := config.Encode(doc, config.FormatJSON)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		if err := st.WriteRun(ctx, x.RunID(), string(raw)); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err)
		}
	}

	interrupted := false
	if err := x.Run(ctx); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			interrupted = true
			logger.Info("run interrupted", "run_id", x.RunID())
		case xopt.IsEvaluationError(err):
			return formatter.Fail(ExitFailure, ErrCodeEvalFailed, err)
		default:
			return formatter.Fail(ExitFailure, ErrCodeRunFailed, err)
		}
	}

	result := summarize(x)
	result.Interrupted = interrupted
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Run %s: %d evaluations, %d rows, %d failures\n",
		result.RunID, result.Evaluations, result.Rows, result.Failures)
	if result.BestIndex != nil {
		fmt.Fprintf(formatter.Writer, "Best row %d: %v\n", *result.BestIndex, formatRecord(result.Best))
	}
	if interrupted {
		fmt.Fprintln(formatter.Writer, "Run interrupted before completion.")
	}
	return nil
}

// dumpAfterStep rewrites the run document at path after every step. Blobs
// go next to the document.
func dumpAfterStep(path string) func(context.Context, *xopt.Xopt) error {
	blobs := blob.NewStore(filepath.Dir(path))
	return func(_ context.Context, x *xopt.Xopt) error {
		doc, err := config.FromXopt(x, blobs)
		if err != nil {
			return err
		}
		doc.Xopt.DumpFile = path
		return config.Dump(doc, path)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", ln.Addr().String())
	return srv, nil
}

func summarize(x *xopt.Xopt) RunResult {
	data := x.Data()
	result := RunResult{
		RunID:       x.RunID(),
		Evaluations: x.Submitted(),
		Rows:        data.Len(),
		LastIndex:   x.LastIndex(),
	}
	for _, row := range data.Rows() {
		if failed, _ := row.Values[table.ErrorFlagColumn].(bool); failed {
			result.Failures++
		}
	}
	if row, ok := bestRow(x.VOCS(), data); ok {
		ix := row.Index
		result.BestIndex = &ix
		result.Best = jsonSafe(row.Values)
	}
	return result
}

// bestRow picks the best successful row for a single-objective problem,
// preferring feasible rows.
func bestRow(v *vocs.VOCS, data *table.Table) (table.Row, bool) {
	names := v.ObjectiveNames()
	if len(names) != 1 {
		return table.Row{}, false
	}
	obj := names[0]
	sign := 1.0
	if v.Objectives[obj] == vocs.Maximize {
		sign = -1.0
	}

	var (
		best         table.Row
		bestScore    = math.Inf(1)
		bestFeasible bool
		found        bool
	)
	for _, row := range data.Rows() {
		if failed, _ := row.Values[table.ErrorFlagColumn].(bool); failed {
			continue
		}
		y, ok := row.Values.Float(obj)
		if !ok || math.IsNaN(y) {
			continue
		}
		feasible := v.Feasible(row.Values)
		score := sign * y
		if !found || (feasible && !bestFeasible) || (feasible == bestFeasible && score < bestScore) {
			best, bestScore, bestFeasible, found = row, score, feasible, true
		}
	}
	return best, found
}
