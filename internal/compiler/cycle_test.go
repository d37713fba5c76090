package compiler

import "testing"

import "github.com/stretchr/testify/assert"

func TestDetectAliasCycleAcyclic(t *testing.T) {
	graph := aliasGraph{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	}
	assert.Nil(t, detectAliasCycle(graph))
}

func TestDetectAliasCycleFindsSelfLoop(t *testing.T) {
	graph := aliasGraph{
		"a": {"a"},
	}
	err := detectAliasCycle(graph)
	if assert.NotNil(t, err) {
		assert.Equal(t, []string{"a"}, err.Path)
	}
}

func TestDetectAliasCycleFindsIndirectCycle(t *testing.T) {
	graph := aliasGraph{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	err := detectAliasCycle(graph)
	assert.NotNil(t, err)
	assert.Len(t, err.Path, 3)
}

func TestDetectAliasCycleIgnoresSharedTarget(t *testing.T) {
	// Two symbols referencing the same third symbol is not a cycle.
	graph := aliasGraph{
		"a": {"c"},
		"b": {"c"},
		"c": nil,
	}
	assert.Nil(t, detectAliasCycle(graph))
}
