package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/xopt/internal/blob"
	"github.com/roach88/xopt/internal/config"
	"github.com/roach88/xopt/internal/xopt"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Output string
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <config>",
		Short: "Write the fully resolved run document",
		Long: `Build the orchestrator a run document describes and serialize it back,
with every generator default filled in and the generator seed fixed.
Components that do not fit inline are written as blobs next to the output.

The output format follows the file extension: .json for JSON, anything else
for YAML. Without --output the YAML document is printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file")

	return cmd
}

func runDump(opts *DumpOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	doc, err := loadDocument(formatter, path)
	if err != nil {
		return err
	}
	x, err := config.Build(doc, filepath.Dir(path), xopt.WithLogger(opts.newLogger()))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBuildFailed, err)
	}

	blobDir := filepath.Dir(path)
	if opts.Output != "" {
		blobDir = filepath.Dir(opts.Output)
	}
	resolved, err := config.FromXopt(x, blob.NewStore(blobDir))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err)
	}
	resolved.Xopt.DumpFile = doc.Xopt.DumpFile

	if opts.Output != "" {
		if err := config.Dump(resolved, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err)
		}
		if formatter.Format == "json" {
			return formatter.Success(map[string]string{"path": opts.Output})
		}
		fmt.Fprintf(formatter.Writer, "✓ Wrote %s\n", opts.Output)
		return nil
	}

	if formatter.Format == "json" {
		data, err := config.Encode(resolved, config.FormatJSON)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		return formatter.Success(raw)
	}

	data, err := config.Encode(resolved, config.FormatYAML)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	_, err = formatter.Writer.Write(data)
	return err
}
