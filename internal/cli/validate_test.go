package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommandSucceedsOnWellFormedTree(t *testing.T) {
	dir := writeSampleTree(t)

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "valid: 1 query resolved")
}

func TestValidateCommandDoesNotWriteAnyFile(t *testing.T) {
	dir := writeSampleTree(t)
	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", dir})
	require.NoError(t, cmd.Execute())

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestValidateCommandFailsOnMismatchedValidatorSets(t *testing.T) {
	dir := t.TempDir()
	source := `
import sql from "./sql";
import { a, b } from "./validators";

export function f1(ctx, id) {
  return ctx.executeQuery(sql` + "`SELECT * FROM t WHERE id = ${id}`" + `, a);
}
export function f2(ctx, id) {
  return ctx.executeQuery(sql` + "`SELECT * FROM t WHERE id = ${id}`" + `, b);
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "q.ts"), []byte(source), 0644))

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", dir})

	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "E110")
}

func TestValidateCommandFailsOnMissingSourceDir(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", filepath.Join(t.TempDir(), "nope")})

	err := cmd.Execute()
	assert.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
