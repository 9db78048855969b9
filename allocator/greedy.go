package allocator

import (
	"context"
	"log"
	"os"
	"sort"
	"time"

	"github.com/KKFPS/allocation-v2/solver"
)

// Greedy is the deterministic fallback solver: take candidates in score
// order, best first, accepting each whose vehicle is still unused and whose
// routes are all uncovered.
type Greedy struct {
	logger *log.Logger
}

// NewGreedy creates a greedy solver. A nil logger falls back to stdout.
func NewGreedy(logger *log.Logger) *Greedy {
	if logger == nil {
		logger = log.New(os.Stdout, "[ALLOCATOR] ", log.LstdFlags)
	}
	return &Greedy{logger: logger}
}

// Solve orders candidates by cost descending, ties broken by longer sequence
// first, then lower vehicle id, so repeated runs over the same input produce
// the same selection.
func (g *Greedy) Solve(ctx context.Context, m *Model) (Solution, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return Solution{Outcome: solver.Unavailable}, err
	}

	order := make([]int, len(m.Candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := m.Candidates[order[a]], m.Candidates[order[b]]
		if ca.Cost != cb.Cost {
			return ca.Cost > cb.Cost
		}
		if len(ca.Routes) != len(cb.Routes) {
			return len(ca.Routes) > len(cb.Routes)
		}
		return ca.VehicleID < cb.VehicleID
	})

	usedVehicles := make(map[int]bool)
	coveredRoutes := make(map[string]bool)
	var selected []int

	for _, idx := range order {
		c := m.Candidates[idx]
		if usedVehicles[c.VehicleID] {
			continue
		}
		clash := false
		for _, route := range c.Routes {
			if coveredRoutes[route.ID] {
				clash = true
				break
			}
		}
		if clash {
			continue
		}

		selected = append(selected, idx)
		usedVehicles[c.VehicleID] = true
		for _, route := range c.Routes {
			coveredRoutes[route.ID] = true
		}
	}

	sol := Solution{
		Outcome:   solver.Solved,
		Selected:  selected,
		Objective: m.Objective(selected),
		SolveTime: time.Since(start),
	}
	g.logger.Printf("Greedy allocation: %d sequences selected, %d/%d routes covered, objective %.2f",
		len(selected), len(coveredRoutes), len(m.RouteIDs), sol.Objective)
	return sol, nil
}
