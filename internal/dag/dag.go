// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed graph operations for topological sorting,
// level grouping and reachability. The framework uses it to order module
// stops and restarts along wires and to compute the dependents a refresh
// must tear down.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError[K comparable] struct {
		// Cycle contains the nodes that form the cycle (not necessarily all of them,
		// but enough to identify the problem).
		Cycle []K
	}

	// Graph is a directed graph for topological sorting.
	// Edges represent "must run before" relationships:
	// an edge from A to B means A must complete before B starts.
	Graph[K comparable] struct {
		// adjacency maps each node to its outgoing neighbors (nodes that depend on it).
		adjacency map[K][]K
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []K
		// nodeSet provides O(1) lookup for node existence.
		nodeSet map[K]bool
	}
)

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, n := range e.Cycle {
		parts[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, " -> "))
}

// New creates an empty Graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		adjacency: make(map[K][]K),
		nodeSet:   make(map[K]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph[K]) AddNode(n K) {
	if g.nodeSet[n] {
		return
	}
	g.nodeSet[n] = true
	g.nodes = append(g.nodes, n)
}

// AddEdge adds a directed edge from -> to, meaning "from" must run before "to".
// Both nodes are implicitly added if they don't exist. Duplicate edges are ignored.
func (g *Graph[K]) AddEdge(from, to K) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.adjacency[from], to) {
		return
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Has reports whether n is a node of the graph.
func (g *Graph[K]) Has(n K) bool { return g.nodeSet[n] }

// Nodes returns the nodes in insertion order.
func (g *Graph[K]) Nodes() []K { return slices.Clone(g.nodes) }

// Successors returns the nodes n has an edge to.
func (g *Graph[K]) Successors(n K) []K { return slices.Clone(g.adjacency[n]) }

// TopologicalSort returns a valid execution order using Kahn's algorithm.
// Returns CycleError if the graph contains a cycle.
// The returned order is deterministic: nodes at the same topological level
// appear in the order they were first added to the graph.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}
	levels, cyclic := g.levels()
	if len(cyclic) > 0 {
		return nil, &CycleError[K]{Cycle: cyclic}
	}
	return slices.Concat(levels...), nil
}

// Levels groups nodes so that every edge runs from an earlier level to a later
// one; nodes within a level are independent of each other. Nodes caught in a
// cycle cannot be ordered and are returned together as a final level.
func (g *Graph[K]) Levels() [][]K {
	levels, cyclic := g.levels()
	if len(cyclic) > 0 {
		levels = append(levels, cyclic)
	}
	return levels
}

func (g *Graph[K]) levels() (levels [][]K, cyclic []K) {
	// Compute in-degrees.
	inDegree := make(map[K]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	// Seed the first level with nodes that have no incoming edges, in insertion order.
	var current []K
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			current = append(current, node)
		}
	}

	seen := 0
	for len(current) > 0 {
		levels = append(levels, current)
		seen += len(current)

		var next []K
		for _, node := range current {
			for _, neighbor := range g.adjacency[node] {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					next = append(next, neighbor)
				}
			}
		}
		// Keep insertion order within a level.
		slices.SortStableFunc(next, func(a, b K) int {
			return slices.Index(g.nodes, a) - slices.Index(g.nodes, b)
		})
		current = next
	}

	if seen != len(g.nodes) {
		// Remaining nodes with non-zero in-degree form the cycle.
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cyclic = append(cyclic, node)
			}
		}
	}
	return levels, cyclic
}

// Reachable returns every node reachable from the given start nodes, including
// the start nodes that exist in the graph, in insertion order.
func (g *Graph[K]) Reachable(from ...K) []K {
	visited := make(map[K]bool, len(g.nodes))
	var stack []K
	for _, n := range from {
		if g.nodeSet[n] && !visited[n] {
			visited[n] = true
			stack = append(stack, n)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, neighbor := range g.adjacency[n] {
			if !visited[neighbor] {
				visited[neighbor] = true
				stack = append(stack, neighbor)
			}
		}
	}

	var out []K
	for _, n := range g.nodes {
		if visited[n] {
			out = append(out, n)
		}
	}
	return out
}

// Subgraph returns the graph induced by keep: the kept nodes in their original
// insertion order and every edge between two kept nodes.
func (g *Graph[K]) Subgraph(keep []K) *Graph[K] {
	in := make(map[K]bool, len(keep))
	for _, n := range keep {
		in[n] = true
	}
	sub := New[K]()
	for _, n := range g.nodes {
		if in[n] {
			sub.AddNode(n)
		}
	}
	for _, n := range sub.nodes {
		for _, neighbor := range g.adjacency[n] {
			if in[neighbor] {
				sub.AddEdge(n, neighbor)
			}
		}
	}
	return sub
}
