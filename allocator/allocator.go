package allocator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/solver"
)

// Allocator runs a primary solver over an allocation model and falls back to
// greedy when the primary is unavailable.
type Allocator struct {
	primary  Solver
	fallback *Greedy
	logger   *log.Logger
}

// New creates an allocator. A nil primary means greedy-only operation; a nil
// logger falls back to stdout.
func New(primary Solver, logger *log.Logger) *Allocator {
	if logger == nil {
		logger = log.New(os.Stdout, "[ALLOCATOR] ", log.LstdFlags)
	}
	return &Allocator{
		primary:  primary,
		fallback: NewGreedy(logger),
		logger:   logger,
	}
}

// Solve tries the primary solver first. An Unavailable outcome or an error
// wrapping solver.ErrSolverUnavailable triggers the greedy fallback; a
// Timeout outcome keeps the best-so-far selection.
func (a *Allocator) Solve(ctx context.Context, m *Model) (Solution, error) {
	if m.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.TimeLimit)
		defer cancel()
	}

	if a.primary != nil {
		sol, err := a.primary.Solve(ctx, m)
		switch {
		case err == nil && sol.Outcome != solver.Unavailable:
			return sol, nil
		case err != nil && !errors.Is(err, solver.ErrSolverUnavailable):
			return sol, fmt.Errorf("allocation solve failed: %w", err)
		}
		a.logger.Printf("WARNING: primary solver unavailable, falling back to greedy")
	}

	return a.fallback.Solve(ctx, m)
}

// BuildResult converts a solution into the persistent allocation result:
// per-route allocations with the sequence cost shared evenly across its
// routes, estimated arrival at plan end, and the arrival SOC placeholder.
// Routes not covered by any selected sequence are marked unallocated.
func BuildResult(m *Model, sol Solution, siteID int, runTime, windowStart, windowEnd time.Time) *fleet.AllocationResult {
	result := fleet.NewAllocationResult(siteID, runTime, windowStart, windowEnd)
	result.RoutesInWindow = len(m.RouteIDs)
	result.RoutesOverlapping = fleet.CountOverlappingPairs(m.Routes, 0)

	covered := make(map[string]bool)
	for _, idx := range sol.Selected {
		c := m.Candidates[idx]
		share := c.Cost / float64(len(c.Routes))
		for _, route := range c.Routes {
			result.Add(fleet.RouteAllocation{
				RouteID:             route.ID,
				VehicleID:           c.VehicleID,
				EstimatedArrival:    route.PlanEnd,
				EstimatedArrivalSOC: fleet.PlaceholderArrivalSOC,
				Cost:                share,
			})
			covered[route.ID] = true
		}
	}

	for _, routeID := range m.RouteIDs {
		if !covered[routeID] {
			result.MarkUnallocated(routeID)
		}
	}

	return result
}
