// Package pace implements the graph model and the text codecs used by the
// PACE dominating-set ecosystem: the `.gr` instance format and the `.sol`
// solution format.
//
// Instances use 1-based node IDs. The parser canonicalizes on the way in:
// self-loops are rejected, duplicate edges are coalesced, and the declared
// edge count of the header must match the number of edge lines.
package pace

import "sort"

// Graph is an undirected graph with nodes 1..n and an adjacency list per
// node. Index 0 of adj is unused so node IDs can be used directly.
type Graph struct {
	n   int
	m   int
	adj [][]int
}

// NewGraph builds a graph from an edge list. Self-loops and out-of-range
// endpoints are invalid arguments and reported as a FormatError; duplicate
// edges are coalesced.
func NewGraph(n int, edges [][2]int) (*Graph, error) {
	g := &Graph{n: n, adj: make([][]int, n+1)}
	for _, e := range edges {
		if err := g.addEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	g.dedup()
	return g, nil
}

func (g *Graph) addEdge(u, v int) error {
	if u < 1 || u > g.n || v < 1 || v > g.n {
		return &FormatError{Line: 0, Msg: "edge endpoint out of range"}
	}
	if u == v {
		return &FormatError{Line: 0, Msg: "self-loop rejected"}
	}
	g.adj[u] = append(g.adj[u], v)
	g.adj[v] = append(g.adj[v], u)
	return nil
}

// dedup sorts every adjacency list and removes duplicates, then recounts m.
func (g *Graph) dedup() {
	m := 0
	for v := 1; v <= g.n; v++ {
		l := g.adj[v]
		sort.Ints(l)
		out := l[:0]
		prev := 0
		for _, w := range l {
			if w != prev {
				out = append(out, w)
				prev = w
			}
		}
		g.adj[v] = out
		m += len(out)
	}
	g.m = m / 2
}

// NumNodes returns n.
func (g *Graph) NumNodes() int { return g.n }

// NumEdges returns the number of distinct edges.
func (g *Graph) NumEdges() int { return g.m }

// Neighbors returns the sorted neighbor list of v. The returned slice is
// owned by the graph and must not be modified.
func (g *Graph) Neighbors(v int) []int { return g.adj[v] }

// Degree returns the degree of v.
func (g *Graph) Degree(v int) int { return len(g.adj[v]) }

// Edges enumerates all edges with u < v in lexicographic order.
func (g *Graph) Edges() [][2]int {
	edges := make([][2]int, 0, g.m)
	for u := 1; u <= g.n; u++ {
		for _, v := range g.adj[u] {
			if u < v {
				edges = append(edges, [2]int{u, v})
			}
		}
	}
	return edges
}
