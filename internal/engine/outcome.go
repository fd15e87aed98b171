// Package engine hosts the run engine: the job selector, the process
// supervisor, the bounded worker pool, the upload queue, and the CSV run
// summary.
package engine

import "time"

// State is the final classification of one job. Best through Incomplete
// come from the verifier; Error and Timeout are runner-level outcomes.
type State int

const (
	StateBest State = iota
	StateSuboptimal
	StateInfeasible
	StateIncomplete
	StateError
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StateBest:
		return "best"
	case StateSuboptimal:
		return "suboptimal"
	case StateInfeasible:
		return "infeasible"
	case StateIncomplete:
		return "incomplete"
	case StateError:
		return "error"
	case StateTimeout:
		return "timeout"
	}
	return "unknown"
}

// Outcome is the published result of one job. Score is present iff the
// state is Best or Suboptimal.
type Outcome struct {
	IID       uint32
	Wall      time.Duration
	State     State
	Score     *int
	BestKnown *int

	StdoutTruncated bool
}

// Stats counts finished jobs per state.
type Stats struct {
	Best       int
	Suboptimal int
	Infeasible int
	Incomplete int
	Error      int
	Timeout    int
}

// Count adds one outcome.
func (s *Stats) Count(state State) {
	switch state {
	case StateBest:
		s.Best++
	case StateSuboptimal:
		s.Suboptimal++
	case StateInfeasible:
		s.Infeasible++
	case StateIncomplete:
		s.Incomplete++
	case StateError:
		s.Error++
	case StateTimeout:
		s.Timeout++
	}
}

// Attempted returns the number of finished jobs.
func (s *Stats) Attempted() int {
	return s.Best + s.Suboptimal + s.Infeasible + s.Incomplete + s.Error + s.Timeout
}
