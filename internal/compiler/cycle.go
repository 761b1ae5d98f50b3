package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/deduce/internal/syntax"
)

// dependencyGraph maps rule name → names of the rules its body applies.
// nodes keeps declaration order so that analysis is deterministic.
type dependencyGraph struct {
	nodes []string
	edges map[string][]string
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{edges: make(map[string][]string)}
}

func (g *dependencyGraph) add(rule string, deps []string) {
	if _, ok := g.edges[rule]; !ok {
		g.nodes = append(g.nodes, rule)
	}
	g.edges[rule] = append(g.edges[rule], deps...)
}

// compileOrder returns the rules in dependency order: every rule comes after
// the rules it applies. Rules that apply each other (directly or through a
// chain) are a RULE_CYCLE error; a rule re-entering itself must use recur.
//
// The algorithm:
//  1. Use Tarjan's algorithm to find strongly connected components
//  2. Report the first SCC with size > 1 or a self-loop as a cycle
//  3. Otherwise the SCCs, in the order Tarjan emits them, are the order
func compileOrder(g *dependencyGraph) ([]string, error) {
	sccs := tarjanSCC(g)

	order := make([]string, 0, len(g.nodes))
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			path := reconstructCyclePath(scc, g)
			return nil, &syntax.CompileError{
				Code:    syntax.ErrCodeRuleCycle,
				Message: fmt.Sprintf("rules apply each other: %s", strings.Join(path, " → ")),
				Rule:    path[0],
			}
		}
		if _, declared := g.edges[scc[0]]; declared {
			order = append(order, scc[0])
		}
	}
	return order, nil
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g *dependencyGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Components are emitted after every component reachable from them, so
// dependencies come first. Names that are applied but never declared show up
// as single-node components.
func tarjanSCC(g *dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes in declaration order
	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at the first declared member, follow edges to other SCC
// members, continue until we return to start node.
func reconstructCyclePath(scc []string, g *dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	for _, node := range g.nodes {
		if sccSet[node] {
			start = node
			break
		}
	}
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
