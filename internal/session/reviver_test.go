package session

import (
	"testing"

	"github.com/latchql/latch/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviveRecognizesRowEnvelope(t *testing.T) {
	obj := ir.IRObject{
		"__C_": ir.IRArray{ir.IRString("id"), ir.IRString("name")},
		"__R_": ir.IRArray{
			ir.IRArray{ir.IRInt(1), ir.IRString("alice")},
			ir.IRArray{ir.IRInt(2), ir.IRString("bob")},
		},
		"__A_": ir.IRInt(2),
	}

	revived := Revive(obj)
	env, ok := revived.(*RowEnvelope)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, env.Columns)
	assert.Equal(t, int64(2), env.Affected)

	rows := env.Iter()
	require.Len(t, rows, 2)
	assert.Equal(t, ir.IRString("alice"), rows[0]["name"])
}

func TestRevivePassesThroughOrdinaryObjects(t *testing.T) {
	obj := ir.IRObject{"ok": ir.IRBool(true)}
	revived := Revive(obj)
	m, ok := revived.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ir.IRBool(true), m["ok"])
}

func TestReviveRecursesIntoNestedStructures(t *testing.T) {
	nested := ir.IRArray{
		ir.IRObject{
			"__C_": ir.IRArray{ir.IRString("x")},
			"__R_": ir.IRArray{ir.IRArray{ir.IRInt(1)}},
		},
	}
	revived := Revive(nested)
	list, ok := revived.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	_, ok = list[0].(*RowEnvelope)
	assert.True(t, ok)
}
