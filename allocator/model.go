// Package allocator selects route sequences for vehicles as a set-covering
// problem.
//
// Exact formulation, for an external MILP solver: one binary x_i per
// candidate sequence and one binary y_r per route; maximize
// W*sum(y_r) + sum(c_i*x_i) subject to at most one sequence per vehicle,
// each route covered at most once, and the linking constraints
// y_r <= sum(x_i covering r) and sum(x_i covering r) <= |cover(r)|*y_r.
// The in-tree Greedy solver approximates this deterministically and serves
// as the fallback whenever no exact solver is reachable.
package allocator

import (
	"context"
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/sequence"
	"github.com/KKFPS/allocation-v2/solver"
)

// DefaultRouteWeight is W in the objective: covering one more route beats any
// achievable soft-score difference.
const DefaultRouteWeight = 100.0

// DefaultTimeLimit bounds one allocation solve.
const DefaultTimeLimit = 30 * time.Second

// Model is the allocation problem handed to a solver.
type Model struct {
	Candidates  []sequence.Candidate
	RouteIDs    []string
	RouteWeight float64
	TimeLimit   time.Duration

	// Routes optionally carries the window's route objects; when set,
	// BuildResult reports how many pairs of them collide in time.
	Routes []*fleet.Route
}

// NewModel builds a model with default weight and time limit over the given
// candidates and the distinct routes they cover.
func NewModel(candidates []sequence.Candidate, routeIDs []string) *Model {
	return &Model{
		Candidates:  candidates,
		RouteIDs:    routeIDs,
		RouteWeight: DefaultRouteWeight,
		TimeLimit:   DefaultTimeLimit,
	}
}

// Solution is the outcome of one allocation solve. Selected holds candidate
// indices into Model.Candidates.
type Solution struct {
	Outcome   solver.Outcome
	Selected  []int
	Objective float64
	SolveTime time.Duration
}

// Solver solves allocation models. Implementations must respect the model's
// time limit and the context.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Solution, error)
}

// Objective computes W*routesCovered + sum of selected costs for a selection.
func (m *Model) Objective(selected []int) float64 {
	covered := make(map[string]bool)
	total := 0.0
	for _, idx := range selected {
		c := m.Candidates[idx]
		total += c.Cost
		for _, route := range c.Routes {
			covered[route.ID] = true
		}
	}
	return m.RouteWeight*float64(len(covered)) + total
}
