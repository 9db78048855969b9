package charge

import (
	"math"
	"testing"
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildAvailability(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	slots := BuildSlots(base, base.Add(4*time.Hour), nil) // 8 slots, 18:00-22:00

	t.Run("VOR vehicle is fully unavailable", func(t *testing.T) {
		states := []VehicleChargeState{{VehicleID: 1, Status: "VOR"}}
		avail := BuildAvailability(slots, states, nil, time.Hour)
		for i, a := range avail[1] {
			if a {
				t.Fatalf("slot %d available for a VOR vehicle", i)
			}
		}
	})

	t.Run("on-route vehicle unavailable before return", func(t *testing.T) {
		states := []VehicleChargeState{{
			VehicleID:    2,
			Status:       "On-Route",
			CurrentRoute: "R9",
			ReturnETA:    base.Add(90 * time.Minute), // back 19:30
		}}
		avail := BuildAvailability(slots, states, nil, time.Hour)
		// Slots 18:00, 18:30, 19:00 blocked; 19:30 on free.
		for i, want := range []bool{false, false, false, true, true, true, true, true} {
			if avail[2][i] != want {
				t.Errorf("slot %d = %v, want %v", i, avail[2][i], want)
			}
		}
	})

	t.Run("planned route blocks its window plus the departure buffer", func(t *testing.T) {
		states := []VehicleChargeState{{VehicleID: 3, Status: "Idle"}}
		routes := map[int][]*fleet.Route{
			3: {{ID: "R1", PlanStart: base.Add(2 * time.Hour), PlanEnd: base.Add(3 * time.Hour)}},
		}
		avail := BuildAvailability(slots, states, routes, time.Hour)
		// Route 20:00-21:00 with a 1h buffer blocks 19:00 through 21:00.
		for i, want := range []bool{true, true, false, false, false, false, true, true} {
			if avail[3][i] != want {
				t.Errorf("slot %d = %v, want %v", i, avail[3][i], want)
			}
		}
	})
}

func TestBuildCheckpoints(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	states := []VehicleChargeState{{VehicleID: 1, Efficiency: 0.5}}
	routes := map[int][]*fleet.Route{
		1: {
			// Deliberately out of order; checkpoints must sort by departure.
			{ID: "R2", PlanStart: base.Add(8 * time.Hour), PlanEnd: base.Add(12 * time.Hour), Mileage: 40},
			{ID: "R1", PlanStart: base.Add(2 * time.Hour), PlanEnd: base.Add(6 * time.Hour), Mileage: 60},
		},
	}

	cps := BuildCheckpoints(states, routes, 1.15, 90*time.Minute)[1]
	if len(cps) != 2 {
		t.Fatalf("checkpoint count = %d, want 2", len(cps))
	}

	if cps[0].RouteID != "R1" || cps[1].RouteID != "R2" {
		t.Fatalf("checkpoint order = %s, %s, want R1, R2", cps[0].RouteID, cps[1].RouteID)
	}

	// R1: 60 * 0.5 * 1.15 = 34.5; R2 adds 40 * 0.5 * 1.15 = 23.
	if got, want := cps[0].RequiredKWh, 34.5; !almost(got, want) {
		t.Errorf("R1 required = %v, want %v", got, want)
	}
	if got, want := cps[1].CumulativeKWh, 57.5; !almost(got, want) {
		t.Errorf("R2 cumulative = %v, want %v", got, want)
	}

	// Gap R1 end (midnight) to R2 start (02:00) is 2h, not back to back.
	if cps[0].BackToBack {
		t.Error("a 2h gap should not flag back to back")
	}
	if cps[0].GapToNext != 2*time.Hour {
		t.Errorf("GapToNext = %v, want 2h", cps[0].GapToNext)
	}
}

func TestBuildCheckpointsPrefersRouteEnergy(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	states := []VehicleChargeState{{VehicleID: 1, Efficiency: 0.5}}
	routes := map[int][]*fleet.Route{
		1: {{ID: "R1", PlanStart: base.Add(2 * time.Hour), PlanEnd: base.Add(6 * time.Hour), Mileage: 60, EnergyKWh: 20}},
	}

	cps := BuildCheckpoints(states, routes, 1.15, 90*time.Minute)[1]
	// Upstream energy beats the mileage estimate: 20 * 1.15.
	if got, want := cps[0].RequiredKWh, 23.0; !almost(got, want) {
		t.Errorf("RequiredKWh = %v, want %v", got, want)
	}
}

func TestBuildCheckpointsBackToBack(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	states := []VehicleChargeState{{VehicleID: 1, Efficiency: 0.5}}
	routes := map[int][]*fleet.Route{
		1: {
			{ID: "R1", PlanStart: base, PlanEnd: base.Add(2 * time.Hour), Mileage: 10},
			{ID: "R2", PlanStart: base.Add(3 * time.Hour), PlanEnd: base.Add(5 * time.Hour), Mileage: 10},
		},
	}

	cps := BuildCheckpoints(states, routes, 1.15, 90*time.Minute)[1]
	if !cps[0].BackToBack {
		t.Error("a 1h gap below the 90m threshold should flag back to back")
	}
	if cps[1].BackToBack {
		t.Error("the last route never flags back to back")
	}
}
