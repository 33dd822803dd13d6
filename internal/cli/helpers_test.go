package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const sphereDoc = `
generator:
  name: random
  seed: 11
  limit: 4
evaluator:
  function: sphere
  max_workers: 2
vocs:
  variables:
    x1: [0, 1]
    x2: [0, 1]
  objectives:
    y: MINIMIZE
`

// rosenbrock needs two inputs, so every row of this document fails.
const failingDoc = `
xopt:
  strict: %s
generator:
  name: random
  limit: 3
evaluator:
  function: rosenbrock
vocs:
  variables:
    x: [0, 1]
  objectives:
    y: MINIMIZE
`

func writeDoc(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func rootOptions(format string) *RootOptions {
	return &RootOptions{Format: format, LogWriter: io.Discard}
}

// execute runs cmd with args and returns stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData parses a JSON CLIResponse and returns its data field.
func decodeData(t *testing.T, out string) any {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	return resp.Data
}
