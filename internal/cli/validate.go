package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/xopt/internal/config"
	"github.com/roach88/xopt/internal/xopt"
)

// ValidationResult describes a document that built successfully.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Generator   string   `json:"generator"`
	Evaluator   string   `json:"evaluator"`
	MaxWorkers  int      `json:"max_workers"`
	Variables   []string `json:"variables"`
	Objectives  []string `json:"objectives,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a run document without running it",
		Long: `Parse a run document, check it against the schema and build the
generator and evaluator it names. Nothing is evaluated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	doc, err := loadDocument(formatter, path)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded %s", path)

	x, err := config.Build(doc, filepath.Dir(path), xopt.WithLogger(opts.newLogger()))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBuildFailed, err)
	}

	v := x.VOCS()
	result := ValidationResult{
		Valid:       true,
		Generator:   doc.Generator.Name,
		Evaluator:   doc.Evaluator.Function,
		MaxWorkers:  x.Evaluator().MaxWorkers(),
		Variables:   v.VariableNames(),
		Objectives:  v.ObjectiveNames(),
		Constraints: v.ConstraintNames(),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
	fmt.Fprintf(formatter.Writer, "  generator: %s\n", result.Generator)
	fmt.Fprintf(formatter.Writer, "  evaluator: %s (%d workers)\n", result.Evaluator, result.MaxWorkers)
	fmt.Fprintf(formatter.Writer, "  variables: %v\n", result.Variables)
	return nil
}

// loadDocument loads path, reporting a missing file as E003 and anything
// else as an invalid document.
func loadDocument(formatter *OutputFormatter, path string) (*config.Document, error) {
	doc, err := config.Load(path)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	return nil, formatter.Fail(ExitCommandError, ErrCodeInvalidDoc, err)
}
