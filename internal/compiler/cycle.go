package compiler

import (
	"fmt"
	"strings"
)

// AliasCycleError reports a circular alias chain that detectAliasCycle
// found in an alias graph: a symbol whose variable-declaration /
// re-export chain loops back on itself, so it can never produce a
// concrete expression.
//
// ResolveQueryExpression does not build an alias graph; it stops on an
// identifier it has already visited and reports that as ErrUnresolved.
type AliasCycleError struct {
	Path []string
}

func (e *AliasCycleError) Error() string {
	return fmt.Sprintf("circular alias chain: %s", strings.Join(e.Path, " -> "))
}

// aliasGraph maps a symbol's qualified name to the symbols its
// declaration chain immediately refers to (import specifier -> alias
// target, re-export -> source module symbol, and so on).
type aliasGraph map[string][]string

// detectAliasCycle runs Tarjan's strongly-connected-components algorithm
// over the alias graph and returns an error naming the first cycle found,
// or nil if the graph is acyclic.
func detectAliasCycle(graph aliasGraph) *AliasCycleError {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		found   *AliasCycleError
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		if found != nil {
			return
		}
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if found != nil {
				return
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || hasSelfEdge(scc[0], graph) {
				found = &AliasCycleError{Path: reversePath(scc)}
			}
		}
	}

	for node := range graph {
		if found != nil {
			break
		}
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return found
}

func hasSelfEdge(node string, graph aliasGraph) bool {
	for _, w := range graph[node] {
		if w == node {
			return true
		}
	}
	return false
}

func reversePath(scc []string) []string {
	path := make([]string, len(scc))
	for i, v := range scc {
		path[len(scc)-1-i] = v
	}
	return path
}
