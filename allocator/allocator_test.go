package allocator

import (
	"context"
	"errors"
	"log"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/sequence"
	"github.com/KKFPS/allocation-v2/solver"
)

var testLogger = log.New(os.Stdout, "[TEST] ", log.LstdFlags)

func testRoute(id string, start time.Time, hours float64) *fleet.Route {
	return &fleet.Route{
		ID:        id,
		SiteID:    1,
		Status:    fleet.RouteStatusNew,
		PlanStart: start,
		PlanEnd:   start.Add(time.Duration(hours * float64(time.Hour))),
	}
}

func TestGreedySelection(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := testRoute("R1", base, 2)
	r2 := testRoute("R2", base.Add(4*time.Hour), 2)
	r3 := testRoute("R3", base.Add(8*time.Hour), 2)

	candidates := []sequence.Candidate{
		{VehicleID: 1, Routes: []*fleet.Route{r1}, Cost: 0.5},
		{VehicleID: 1, Routes: []*fleet.Route{r1, r2}, Cost: 0.0},
		{VehicleID: 2, Routes: []*fleet.Route{r2}, Cost: 1.0},
		{VehicleID: 2, Routes: []*fleet.Route{r3}, Cost: -1.0},
		{VehicleID: 3, Routes: []*fleet.Route{r3}, Cost: -2.0},
	}
	m := NewModel(candidates, []string{"R1", "R2", "R3"})

	sol, err := NewGreedy(testLogger).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.Outcome != solver.Solved {
		t.Fatalf("Outcome = %v, want Solved", sol.Outcome)
	}

	// Best cost first: vehicle 2 takes R2 (1.0), vehicle 1 takes R1 (0.5),
	// vehicle 3 takes R3 (-2.0). The (R1,R2) pair clashes with both.
	want := []int{2, 0, 4}
	if !reflect.DeepEqual(sol.Selected, want) {
		t.Fatalf("Selected = %v, want %v", sol.Selected, want)
	}

	// 3 routes covered at weight 100 plus the selected costs.
	if got, want := sol.Objective, 300.0+1.0+0.5-2.0; got != want {
		t.Errorf("Objective = %v, want %v", got, want)
	}
}

func TestGreedyTieBreaks(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := testRoute("R1", base, 2)
	r2 := testRoute("R2", base.Add(4*time.Hour), 2)

	// Equal costs: the longer sequence wins; equal length goes to the lower
	// vehicle id.
	candidates := []sequence.Candidate{
		{VehicleID: 5, Routes: []*fleet.Route{r1}, Cost: 0.0},
		{VehicleID: 2, Routes: []*fleet.Route{r1, r2}, Cost: 0.0},
		{VehicleID: 1, Routes: []*fleet.Route{r1}, Cost: 0.0},
	}
	m := NewModel(candidates, []string{"R1", "R2"})

	sol, err := NewGreedy(testLogger).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if !reflect.DeepEqual(sol.Selected, []int{1}) {
		t.Fatalf("Selected = %v, want the two-route sequence only", sol.Selected)
	}
}

func TestGreedyOneSequencePerVehicle(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := testRoute("R1", base, 2)
	r2 := testRoute("R2", base.Add(4*time.Hour), 2)

	candidates := []sequence.Candidate{
		{VehicleID: 1, Routes: []*fleet.Route{r1}, Cost: 2.0},
		{VehicleID: 1, Routes: []*fleet.Route{r2}, Cost: 1.0},
	}
	m := NewModel(candidates, []string{"R1", "R2"})

	sol, _ := NewGreedy(testLogger).Solve(context.Background(), m)
	if len(sol.Selected) != 1 {
		t.Fatalf("vehicle 1 selected %d times, want 1", len(sol.Selected))
	}
	if sol.Selected[0] != 0 {
		t.Errorf("Selected = %v, want the higher-cost candidate", sol.Selected)
	}
}

// stubSolver returns a canned solution or error.
type stubSolver struct {
	sol Solution
	err error
}

func (s *stubSolver) Solve(ctx context.Context, m *Model) (Solution, error) {
	return s.sol, s.err
}

func TestAllocatorFallback(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := testRoute("R1", base, 2)
	m := NewModel([]sequence.Candidate{{VehicleID: 1, Routes: []*fleet.Route{r1}, Cost: 1.0}}, []string{"R1"})

	t.Run("unavailable error falls back to greedy", func(t *testing.T) {
		a := New(&stubSolver{err: solver.ErrSolverUnavailable}, testLogger)
		sol, err := a.Solve(context.Background(), m)
		if err != nil {
			t.Fatalf("fallback failed: %v", err)
		}
		if len(sol.Selected) != 1 {
			t.Errorf("fallback selected %v, want one candidate", sol.Selected)
		}
	})

	t.Run("unavailable outcome falls back to greedy", func(t *testing.T) {
		a := New(&stubSolver{sol: Solution{Outcome: solver.Unavailable}}, testLogger)
		sol, err := a.Solve(context.Background(), m)
		if err != nil {
			t.Fatalf("fallback failed: %v", err)
		}
		if sol.Outcome != solver.Solved {
			t.Errorf("Outcome = %v, want Solved from greedy", sol.Outcome)
		}
	})

	t.Run("other errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		a := New(&stubSolver{err: boom}, testLogger)
		if _, err := a.Solve(context.Background(), m); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
	})

	t.Run("primary solution is used when present", func(t *testing.T) {
		a := New(&stubSolver{sol: Solution{Outcome: solver.Solved, Selected: []int{0}, Objective: 101}}, testLogger)
		sol, err := a.Solve(context.Background(), m)
		if err != nil {
			t.Fatalf("Solve failed: %v", err)
		}
		if sol.Objective != 101 {
			t.Errorf("Objective = %v, want the primary's 101", sol.Objective)
		}
	})
}

func TestBuildResult(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := testRoute("R1", base, 2)
	r2 := testRoute("R2", base.Add(4*time.Hour), 2)

	r3 := testRoute("R3", base.Add(5*time.Hour), 2) // collides with R2

	candidates := []sequence.Candidate{
		{VehicleID: 1, Routes: []*fleet.Route{r1, r2}, Cost: 1.0},
	}
	m := NewModel(candidates, []string{"R1", "R2", "R3"})
	m.Routes = []*fleet.Route{r1, r2, r3}
	sol := Solution{Outcome: solver.Solved, Selected: []int{0}}

	runTime := base.Add(-2 * time.Hour)
	result := BuildResult(m, sol, 1, runTime, runTime, runTime.Add(18*time.Hour))

	if result.RoutesInWindow != 3 {
		t.Errorf("RoutesInWindow = %d, want 3", result.RoutesInWindow)
	}
	if result.RoutesAllocated != 2 {
		t.Errorf("RoutesAllocated = %d, want 2", result.RoutesAllocated)
	}
	if !reflect.DeepEqual(result.UnallocatedRoutes, []string{"R3"}) {
		t.Errorf("UnallocatedRoutes = %v, want [R3]", result.UnallocatedRoutes)
	}
	// R2 (12:00-14:00) and R3 (13:00-15:00) are the only colliding pair.
	if result.RoutesOverlapping != 1 {
		t.Errorf("RoutesOverlapping = %d, want 1", result.RoutesOverlapping)
	}

	// The sequence cost is shared evenly across its routes.
	for _, a := range result.Allocations {
		if a.Cost != 0.5 {
			t.Errorf("route %s cost share = %v, want 0.5", a.RouteID, a.Cost)
		}
		if a.EstimatedArrivalSOC != fleet.PlaceholderArrivalSOC {
			t.Errorf("route %s arrival SOC = %v, want placeholder", a.RouteID, a.EstimatedArrivalSOC)
		}
	}
	if result.Allocations[0].EstimatedArrival != r1.PlanEnd {
		t.Errorf("estimated arrival = %v, want plan end %v", result.Allocations[0].EstimatedArrival, r1.PlanEnd)
	}
}
