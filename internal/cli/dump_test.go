package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xopt/internal/config"
)

func TestDump_Stdout(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "run.yaml", sphereDoc)

	out, err := execute(NewDumpCommand(rootOptions("text")), path)
	require.NoError(t, err)

	doc, err := config.Decode([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "random", doc.Generator.Name)
	assert.Equal(t, 2, doc.Evaluator.MaxWorkers)
}

func TestDump_JSONEnvelope(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "run.yaml", sphereDoc)

	out, err := execute(NewDumpCommand(rootOptions("json")), path)
	require.NoError(t, err)

	data := decodeData(t, out).(map[string]any)
	assert.Contains(t, data, "generator")
	assert.Contains(t, data, "vocs")
}

func TestDump_OutputFile(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "run.yaml", sphereDoc)
	outPath := filepath.Join(dir, "out.json")

	out, err := execute(NewDumpCommand(rootOptions("text")), "-o", outPath, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	doc, err := config.Load(outPath)
	require.NoError(t, err)
	assert.Equal(t, "sphere", doc.Evaluator.Function)
	assert.Equal(t, []string{"y"}, doc.VOCS.ObjectiveNames())
}

func TestDump_InvalidDocument(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "run.yaml", "generator: [")

	_, err := execute(NewDumpCommand(rootOptions("text")), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeInvalidDoc)
}
