package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "qbox v")
}

func TestRootHasSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "reset")
	assert.Contains(t, names, "version")
}

func TestResetAbortsWithoutConfirmation(t *testing.T) {
	dir := t.TempDir()

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader("no\n"))
	cmd.SetArgs([]string{"reset", "--storage.data_dir", dir, "--log.level", "error"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Aborted.")
}

func TestResetForce(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, uploadsDirName)
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "left.csv"), []byte("a\n1\n"), 0o644))

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"reset", "--force", "--storage.data_dir", dir, "--log.level", "error"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Reset complete.")

	_, err := os.Stat(uploads)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, storeFileName))
	assert.NoError(t, err)
}
