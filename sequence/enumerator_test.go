package sequence

import (
	"log"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/KKFPS/allocation-v2/constraints"
	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/params"
)

var testLogger = log.New(os.Stdout, "[TEST] ", log.LstdFlags)

func testVehicle(id int) *fleet.Vehicle {
	v := fleet.NewVehicle(id, 1)
	v.BatteryCapacity = 200
	v.EfficiencyKWhMile = 0.5
	v.EstimatedSOC = 100
	v.ChargePowerACKW = 22
	return v
}

func testRoute(id string, start time.Time, hours float64) *fleet.Route {
	return &fleet.Route{
		ID:        id,
		SiteID:    1,
		Status:    fleet.RouteStatusNew,
		PlanStart: start,
		PlanEnd:   start.Add(time.Duration(hours * float64(time.Hour))),
		Mileage:   40,
		Orders:    10,
	}
}

func TestCombinations(t *testing.T) {
	var got [][]int
	combinations(4, 2, func(indices []int) {
		combo := make([]int, len(indices))
		copy(combo, indices)
		got = append(got, combo)
	})

	want := [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("combinations(4,2) = %v, want %v", got, want)
	}

	count := 0
	combinations(5, 5, func([]int) { count++ })
	if count != 1 {
		t.Errorf("combinations(5,5) produced %d subsets, want 1", count)
	}

	combinations(3, 4, func([]int) { t.Error("k > n must produce nothing") })
	combinations(3, 0, func([]int) { t.Error("k = 0 must produce nothing") })
}

func TestEnumerate(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	dec := params.NewDecoder(testLogger)
	// The triple chain spans 10 hours, so widen the shift limit.
	manager := constraints.NewStandardManager(dec,
		params.Parameters{"constraint_shift_hours_strict_max_hours": "13"}, testLogger)

	// Three disjoint routes with wide gaps; all pairs and the triple chain.
	routes := []*fleet.Route{
		testRoute("R1", base, 2),
		testRoute("R2", base.Add(4*time.Hour), 2),
		testRoute("R3", base.Add(8*time.Hour), 2),
	}
	v := testVehicle(1)
	v.AvailableFrom = base.Add(-2 * time.Hour)

	e := NewEnumerator(manager, 5, testLogger)
	candidates, stats := e.Enumerate(&constraints.EvalContext{Now: base.Add(-time.Hour)}, []*fleet.Vehicle{v}, routes)

	// 3 singles + 3 pairs + 1 triple.
	if stats.SingleFeasible != 3 {
		t.Errorf("SingleFeasible = %d, want 3", stats.SingleFeasible)
	}
	if stats.MultiFeasible != 4 {
		t.Errorf("MultiFeasible = %d, want 4", stats.MultiFeasible)
	}
	if len(candidates) != 7 {
		t.Fatalf("candidates = %d, want 7", len(candidates))
	}

	// Every candidate's routes arrive in departure order.
	for _, c := range candidates {
		for i := 1; i < len(c.Routes); i++ {
			if c.Routes[i-1].PlanStart.After(c.Routes[i].PlanStart) {
				t.Errorf("candidate %v routes out of order", c.RouteIDs())
			}
		}
	}
}

func TestEnumerateSkipsInfeasible(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	dec := params.NewDecoder(testLogger)
	manager := constraints.NewStandardManager(dec, params.Parameters{}, testLogger)

	// Overlapping routes: both feasible alone, never together.
	routes := []*fleet.Route{
		testRoute("R1", base, 4),
		testRoute("R2", base.Add(time.Hour), 4),
	}
	v := testVehicle(1)
	v.AvailableFrom = base.Add(-2 * time.Hour)

	e := NewEnumerator(manager, 5, testLogger)
	candidates, stats := e.Enumerate(&constraints.EvalContext{Now: base.Add(-time.Hour)}, []*fleet.Vehicle{v}, routes)

	if stats.MultiFeasible != 0 {
		t.Errorf("MultiFeasible = %d, want 0 for overlapping routes", stats.MultiFeasible)
	}
	if len(candidates) != 2 {
		t.Errorf("candidates = %d, want the 2 singles", len(candidates))
	}
}

func TestEnumerateSkipsUnavailableVehicles(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	dec := params.NewDecoder(testLogger)
	manager := constraints.NewStandardManager(dec, params.Parameters{}, testLogger)

	vor := testVehicle(1)
	vor.Status = fleet.StatusVOR
	vor.AvailableFrom = base

	e := NewEnumerator(manager, 5, testLogger)
	candidates, _ := e.Enumerate(&constraints.EvalContext{Now: base},
		[]*fleet.Vehicle{vor}, []*fleet.Route{testRoute("R1", base.Add(2*time.Hour), 2)})

	if len(candidates) != 0 {
		t.Errorf("VOR vehicle produced %d candidates, want 0", len(candidates))
	}
}

func TestEnumerateRespectsAvailability(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	dec := params.NewDecoder(testLogger)
	// Even with the soonness constraint off, a route departing before the
	// vehicle is back must never be offered.
	manager := constraints.NewStandardManager(dec,
		params.Parameters{"constraint_minimum_soonness_enabled": "false"}, testLogger)

	v := testVehicle(1)
	v.AvailableFrom = base.Add(3 * time.Hour)

	routes := []*fleet.Route{
		testRoute("R1", base.Add(time.Hour), 2),   // before the return
		testRoute("R2", base.Add(4*time.Hour), 2), // after it
	}

	e := NewEnumerator(manager, 5, testLogger)
	candidates, _ := e.Enumerate(&constraints.EvalContext{Now: base}, []*fleet.Vehicle{v}, routes)

	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want only the post-return route", len(candidates))
	}
	if got := candidates[0].RouteIDs(); len(got) != 1 || got[0] != "R2" {
		t.Errorf("candidate routes = %v, want [R2]", got)
	}
}

func TestCoverage(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := testRoute("R1", base, 2)
	r2 := testRoute("R2", base.Add(4*time.Hour), 2)

	candidates := []Candidate{
		{VehicleID: 1, Routes: []*fleet.Route{r1}},
		{VehicleID: 2, Routes: []*fleet.Route{r1, r2}},
	}

	cov := Coverage(candidates)
	if !reflect.DeepEqual(cov["R1"], []int{0, 1}) {
		t.Errorf("coverage of R1 = %v, want [0 1]", cov["R1"])
	}
	if !reflect.DeepEqual(cov["R2"], []int{1}) {
		t.Errorf("coverage of R2 = %v, want [1]", cov["R2"])
	}
}
