package cli

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/xopt/internal/store"
	"github.com/roach88/xopt/internal/table"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Failures bool
}

// ObservationRow is one stored row in JSON output.
type ObservationRow struct {
	Index  int64          `json:"ix"`
	Values map[string]any `json:"values"`
}

// ShowResult is the JSON payload for a single run.
type ShowResult struct {
	RunID   string           `json:"run_id"`
	Columns []string         `json:"columns"`
	Rows    []ObservationRow `json:"rows"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Inspect stored runs and observations",
		Long: `Without a run ID, list the runs in the observation store. With one,
print that run's observation table in index order.

Example:
  xopt show --db ./xopt.db
  xopt show --db ./xopt.db --failures 0190f6c2-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite observation store (required)")
	cmd.Flags().BoolVar(&opts.Failures, "failures", false, "only rows whose evaluation failed")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if len(args) == 0 {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err)
		}
		return outputRuns(formatter, runs)
	}

	runID := args[0]
	read := st.ReadObservations
	if opts.Failures {
		read = st.ReadFailures
	}
	data, err := read(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	return outputObservations(formatter, runID, data)
}

func outputRuns(formatter *OutputFormatter, runs []store.RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tROWS\tFAILURES\tLAST IX")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.ID, r.CreatedAt, r.Rows, r.Failures, r.LastIndex)
	}
	return tw.Flush()
}

func outputObservations(formatter *OutputFormatter, runID string, data *table.Table) error {
	columns := data.Columns()
	if formatter.Format == "json" {
		result := ShowResult{RunID: runID, Columns: columns, Rows: []ObservationRow{}}
		for _, row := range data.Rows() {
			result.Rows = append(result.Rows, ObservationRow{Index: row.Index, Values: jsonSafe(row.Values)})
		}
		return formatter.Success(result)
	}

	if data.Len() == 0 {
		fmt.Fprintf(formatter.Writer, "Run %s has no matching rows.\n", runID)
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ix\t"+strings.Join(columns, "\t"))
	for _, row := range data.Rows() {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(row.Values[col])
		}
		fmt.Fprintf(tw, "%d\t%s\n", row.Index, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// formatCell renders a value on one line. Multi-line error traces show their
// first line.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.6g", val)
	case string:
		if i := strings.IndexByte(val, '\n'); i >= 0 {
			return val[:i] + " ..."
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

// formatRecord renders a record as name=value pairs in sorted name order.
func formatRecord(rec map[string]any) string {
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + formatCell(rec[name])
	}
	return strings.Join(parts, " ")
}

// jsonSafe copies rec with non-finite floats replaced by nil, which
// encoding/json cannot represent.
func jsonSafe(rec table.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for name, v := range rec {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[name] = nil
			continue
		}
		out[name] = v
	}
	return out
}
