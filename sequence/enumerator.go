// Package sequence enumerates feasible route sequences per vehicle. Each
// candidate is a vehicle plus an ordered set of routes that passed the full
// constraint set, carrying the soft score the constraints assigned it.
package sequence

import (
	"log"
	"os"

	"github.com/KKFPS/allocation-v2/constraints"
	"github.com/KKFPS/allocation-v2/fleet"
)

// DefaultMaxRoutesPerVehicle bounds sequence length within one window.
const DefaultMaxRoutesPerVehicle = 5

// Candidate is one feasible (vehicle, route sequence) assignment.
type Candidate struct {
	VehicleID int
	Routes    []*fleet.Route
	Cost      float64
}

// RouteIDs returns the route ids of the candidate in sequence order.
func (c Candidate) RouteIDs() []string {
	ids := make([]string, len(c.Routes))
	for i, route := range c.Routes {
		ids[i] = route.ID
	}
	return ids
}

// Stats summarizes one enumeration run.
type Stats struct {
	Vehicles        int
	Routes          int
	SingleFeasible  int
	MultiFeasible   int
	TotalCandidates int
}

// Enumerator generates feasible sequences by exhaustive combination up to
// MaxRoutes per vehicle.
type Enumerator struct {
	Manager   *constraints.Manager
	MaxRoutes int
	logger    *log.Logger
}

// NewEnumerator creates an enumerator. A nil logger falls back to stdout;
// a non-positive maxRoutes falls back to the default.
func NewEnumerator(manager *constraints.Manager, maxRoutes int, logger *log.Logger) *Enumerator {
	if logger == nil {
		logger = log.New(os.Stdout, "[SEQUENCE] ", log.LstdFlags)
	}
	if maxRoutes <= 0 {
		maxRoutes = DefaultMaxRoutesPerVehicle
	}
	return &Enumerator{Manager: manager, MaxRoutes: maxRoutes, logger: logger}
}

// Enumerate evaluates singles and then combinations of length 2..MaxRoutes
// for every vehicle, each combination sorted by planned start before
// evaluation. Route and vehicle order is normalized first so the candidate
// list is deterministic.
func (e *Enumerator) Enumerate(base *constraints.EvalContext, vehicles []*fleet.Vehicle, routes []*fleet.Route) ([]Candidate, Stats) {
	ordered := make([]*fleet.Route, len(routes))
	copy(ordered, routes)
	fleet.SortRoutesByStart(ordered)

	stats := Stats{Vehicles: len(vehicles), Routes: len(ordered)}
	var candidates []Candidate

	for _, vehicle := range vehicles {
		if !vehicle.Available() {
			continue
		}

		// Single routes.
		for _, route := range ordered {
			if c, ok := e.evaluate(base, vehicle, []*fleet.Route{route}); ok {
				candidates = append(candidates, c)
				stats.SingleFeasible++
			}
		}

		// Combinations of length 2..MaxRoutes. Routes are already in start
		// order, so every combination is too.
		maxLen := e.MaxRoutes
		if maxLen > len(ordered) {
			maxLen = len(ordered)
		}
		for length := 2; length <= maxLen; length++ {
			combinations(len(ordered), length, func(indices []int) {
				combo := make([]*fleet.Route, length)
				for i, idx := range indices {
					combo[i] = ordered[idx]
				}
				if c, ok := e.evaluate(base, vehicle, combo); ok {
					candidates = append(candidates, c)
					stats.MultiFeasible++
				}
			})
		}
	}

	stats.TotalCandidates = len(candidates)
	e.logger.Printf("Enumerated %d feasible sequences (%d single, %d multi) over %d vehicles and %d routes",
		stats.TotalCandidates, stats.SingleFeasible, stats.MultiFeasible, stats.Vehicles, stats.Routes)
	return candidates, stats
}

func (e *Enumerator) evaluate(base *constraints.EvalContext, vehicle *fleet.Vehicle, combo []*fleet.Route) (Candidate, bool) {
	// The first departure can never precede the vehicle's return, whatever
	// constraints are configured.
	if combo[0].PlanStart.Before(vehicle.AvailableFrom) {
		return Candidate{}, false
	}

	ctx := *base
	ctx.Vehicle = vehicle
	ctx.Sequence = combo

	eval := e.Manager.EvaluateSequence(&ctx)
	if !eval.Feasible {
		return Candidate{}, false
	}
	return Candidate{VehicleID: vehicle.ID, Routes: combo, Cost: eval.TotalCost}, true
}

// Coverage indexes which candidates cover each route.
func Coverage(candidates []Candidate) map[string][]int {
	coverage := make(map[string][]int)
	for idx, c := range candidates {
		for _, route := range c.Routes {
			coverage[route.ID] = append(coverage[route.ID], idx)
		}
	}
	return coverage
}

// combinations calls fn with every k-subset of [0, n), indices ascending.
func combinations(n, k int, fn func(indices []int)) {
	if k > n || k <= 0 {
		return
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	for {
		fn(indices)

		// Advance to the next combination.
		i := k - 1
		for i >= 0 && indices[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}
}
