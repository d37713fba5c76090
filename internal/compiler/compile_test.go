package compiler

import (
	"context"
	"testing"

	"github.com/latchql/latch/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSourceTreeSimpleQuery(t *testing.T) {
	src := []byte(`
function loadUser(db, id) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE id = ${id}` + "`" + `, checkOwnership);
}

export function checkOwnership(params, session) {}
`)

	front := NewFrontEnd()
	result, err := CompileSourceTree(context.Background(), front, map[string][]byte{"users.ts": src})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Queries, 1)

	q := result.Queries[0]
	assert.Equal(t, "SELECT * FROM users WHERE id = $1", q.Text)
	assert.Len(t, q.Params, 1)
	assert.Equal(t, "id", q.Params[0].Name)
	assert.Equal(t, []ir.ValidatorRef{"checkOwnership"}, q.Validators)
	assert.True(t, q.Public())
}

func TestCompileSourceTreeMergesEquivalentCallSites(t *testing.T) {
	src := []byte(`
function a(db, id) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE id = ${id}` + "`" + `, checkOwnership);
}
function b(db, id) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE id = ${id}` + "`" + `, checkOwnership);
}
export function checkOwnership(params, session) {}
`)

	front := NewFrontEnd()
	result, err := CompileSourceTree(context.Background(), front, map[string][]byte{"users.ts": src})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Queries, 1)
	assert.Len(t, result.Queries[0].Referenced, 2)
}

func TestCompileSourceTreeFlagsValidatorMismatch(t *testing.T) {
	src := []byte(`
function a(db, id) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE id = ${id}` + "`" + `, checkOwnership);
}
function b(db, id) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE id = ${id}` + "`" + `, checkAdmin);
}
export function checkOwnership(params, session) {}
export function checkAdmin(params, session) {}
`)

	front := NewFrontEnd()
	result, err := CompileSourceTree(context.Background(), front, map[string][]byte{"users.ts": src})
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, ErrValidatorSetMismatch, result.Errors[0].Code)
}

func TestCompileSourceTreeRejectsNonExportedValidator(t *testing.T) {
	src := []byte(`
function loadUser(db, id) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE id = ${id}` + "`" + `, checkOwnership);
}

function checkOwnership(params, session) {}
`)

	front := NewFrontEnd()
	result, err := CompileSourceTree(context.Background(), front, map[string][]byte{"users.ts": src})
	require.NoError(t, err)
	assert.Empty(t, result.Queries)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, ErrNoTriggerResolved, result.Errors[0].Code)
}

func TestCompileSourceTreeRenamesCollidingNestedFragmentParamAndWarns(t *testing.T) {
	src := []byte(`
const inner = sql` + "`" + `SELECT id FROM widgets WHERE owner = ${x}` + "`" + `;

function loadUser(db, x) {
  return executeQuery(sql` + "`" + `SELECT * FROM users WHERE a = ${x} AND b IN (${inner})` + "`" + `, checkOwnership);
}
export function checkOwnership(params, session) {}
`)

	front := NewFrontEnd()
	result, err := CompileSourceTree(context.Background(), front, map[string][]byte{"users.ts": src})
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)

	q := result.Queries[0]
	require.Len(t, q.Params, 2)
	assert.Equal(t, "x", q.Params[0].Name)
	assert.Equal(t, "x2", q.Params[1].Name)

	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, WarnFragmentParamRenamed, result.Warnings[0].Code)
}
