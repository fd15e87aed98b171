// Package verify decides whether a solver's output is a valid dominating
// set for a given instance and classifies it against the best known score.
package verify

import (
	"bytes"
	"errors"

	"github.com/domset-tools/stride-runner/internal/pace"
)

// State is the verifier verdict for a parsed solver output.
type State int

const (
	// Best: valid dominating set with score <= best known (or none known).
	Best State = iota
	// Suboptimal: valid dominating set, but a better score is known.
	Suboptimal
	// Infeasible: a vertex line is unparsable or out of range, or the set is
	// not a dominating set of the claimed cardinality.
	Infeasible
	// Incomplete: output ended before a full solution was printed.
	Incomplete
)

func (s State) String() string {
	switch s {
	case Best:
		return "best"
	case Suboptimal:
		return "suboptimal"
	case Infeasible:
		return "infeasible"
	case Incomplete:
		return "incomplete"
	}
	return "unknown"
}

// Result carries the verdict. Score and Vertices are set only for Best and
// Suboptimal; Vertices is the normalized (sorted, de-duplicated) set.
type Result struct {
	State    State
	Score    int
	Vertices []int
}

// Check classifies raw solver STDOUT against g. bestKnown is nil when the
// instance has no recorded best score.
//
// The claimed cardinality k is authoritative: fewer distinct valid vertices
// than k is Incomplete (the solver was cut off), more is Infeasible
// (padding). The dominating property requires S together with its
// neighborhood to cover every node; for n = 0 only the empty set passes.
func Check(g *pace.Graph, raw []byte, bestKnown *int) Result {
	sol, err := pace.ParseSolution(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, pace.ErrSolutionIncomplete) {
			return Result{State: Incomplete}
		}
		return Result{State: Infeasible}
	}

	n := g.NumNodes()
	for _, v := range sol.Vertices {
		if v < 1 || v > n {
			return Result{State: Infeasible}
		}
	}

	set := sol.Normalized()
	if len(set) < sol.K {
		return Result{State: Incomplete}
	}
	if len(set) > sol.K {
		return Result{State: Infeasible}
	}

	if !dominates(g, set) {
		return Result{State: Infeasible}
	}

	score := len(set)
	if bestKnown != nil && score > *bestKnown {
		return Result{State: Suboptimal, Score: score, Vertices: set}
	}
	return Result{State: Best, Score: score, Vertices: set}
}

// dominates reports whether set together with its neighborhood covers all
// nodes of g.
func dominates(g *pace.Graph, set []int) bool {
	n := g.NumNodes()
	if n == 0 {
		return len(set) == 0
	}
	covered := make([]bool, n+1)
	count := 0
	mark := func(v int) {
		if !covered[v] {
			covered[v] = true
			count++
		}
	}
	for _, v := range set {
		mark(v)
		for _, w := range g.Neighbors(v) {
			mark(w)
		}
	}
	return count == n
}
