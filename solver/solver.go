// Package solver defines the shared outcome type for optimization runs.
//
// Exact solvers are external and optional; every optimizer in this module
// reports one of three outcomes so callers can decide whether to accept the
// solution, use the best-so-far, or fall back to the greedy implementation.
package solver

import "errors"

// Outcome classifies how an optimization run ended.
type Outcome int

const (
	// Solved means the solver finished within its time limit.
	Solved Outcome = iota
	// Timeout means the time limit was hit; the returned solution is the
	// best found so far and is still usable.
	Timeout
	// Unavailable means no solver could run; callers fall back to greedy.
	Unavailable
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case Solved:
		return "solved"
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error kinds used across the optimization core. Wrap with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrConfig marks invalid or missing configuration.
	ErrConfig = errors.New("configuration error")
	// ErrData marks missing or inconsistent input data.
	ErrData = errors.New("data error")
	// ErrSolverUnavailable marks an unreachable or unlicensed exact solver.
	ErrSolverUnavailable = errors.New("solver unavailable")
	// ErrInfeasible marks a problem with no acceptable solution.
	ErrInfeasible = errors.New("infeasible")
)
