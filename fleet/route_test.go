package fleet

import (
	"testing"
	"time"
)

func mkRoute(id string, start, end time.Time) *Route {
	return &Route{ID: id, SiteID: 1, Status: RouteStatusNew, PlanStart: start, PlanEnd: end}
}

func TestOverlapsWith(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := mkRoute("R1", base, base.Add(4*time.Hour)) // 08:00-12:00

	tests := []struct {
		name       string
		other      *Route
		turnaround time.Duration
		want       bool
	}{
		{
			name:  "clear overlap",
			other: mkRoute("R2", base.Add(2*time.Hour), base.Add(6*time.Hour)),
			want:  true,
		},
		{
			name:  "back to back without turnaround is disjoint",
			other: mkRoute("R2", base.Add(4*time.Hour), base.Add(6*time.Hour)),
			want:  false,
		},
		{
			name:       "back to back with turnaround overlaps",
			other:      mkRoute("R2", base.Add(4*time.Hour), base.Add(6*time.Hour)),
			turnaround: 45 * time.Minute,
			want:       true,
		},
		{
			name:       "gap covering the turnaround is disjoint",
			other:      mkRoute("R2", base.Add(5*time.Hour), base.Add(7*time.Hour)),
			turnaround: 45 * time.Minute,
			want:       false,
		},
		{
			name:       "overlap is symmetric when other comes first",
			other:      mkRoute("R0", base.Add(-2*time.Hour), base.Add(-90*time.Minute)),
			turnaround: 2 * time.Hour,
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.OverlapsWith(tt.other, tt.turnaround); got != tt.want {
				t.Errorf("OverlapsWith = %v, want %v", got, tt.want)
			}
			if got := tt.other.OverlapsWith(a, tt.turnaround); got != tt.want {
				t.Errorf("OverlapsWith (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanPrecede(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := mkRoute("R1", base, base.Add(4*time.Hour))

	next := mkRoute("R2", base.Add(4*time.Hour+45*time.Minute), base.Add(8*time.Hour))
	if !first.CanPrecede(next, 45*time.Minute) {
		t.Error("exactly the turnaround gap should be allowed")
	}

	tight := mkRoute("R3", base.Add(4*time.Hour+44*time.Minute), base.Add(8*time.Hour))
	if first.CanPrecede(tight, 45*time.Minute) {
		t.Error("a gap below the turnaround should be rejected")
	}
}

func TestEnergyFeasibleAndReturnSOC(t *testing.T) {
	v := NewVehicle(1, 1)
	v.BatteryCapacity = 100
	v.EfficiencyKWhMile = 0.5
	v.EstimatedSOC = 60 // 60 kWh available

	route := &Route{ID: "R1", Mileage: 100} // needs 50 kWh

	if !route.EnergyFeasible(v, 5) {
		t.Error("60 kWh against 50+5 should be feasible")
	}
	if route.EnergyFeasible(v, 15) {
		t.Error("60 kWh against 50+15 should be infeasible")
	}

	if got, want := route.ReturnSOC(v, 60), 10.0; got != want {
		t.Errorf("ReturnSOC = %v, want %v", got, want)
	}
}

func TestSortRoutesByStart(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	routes := []*Route{
		mkRoute("R3", base.Add(2*time.Hour), base.Add(3*time.Hour)),
		mkRoute("R2", base, base.Add(time.Hour)),
		mkRoute("R1", base, base.Add(time.Hour)), // same start as R2, lower id
	}

	SortRoutesByStart(routes)

	got := []string{routes[0].ID, routes[1].ID, routes[2].ID}
	want := []string{"R1", "R2", "R3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted order = %v, want %v", got, want)
		}
	}
}

func TestCountOverlappingPairs(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	routes := []*Route{
		mkRoute("R1", base, base.Add(4*time.Hour)),
		mkRoute("R2", base.Add(2*time.Hour), base.Add(6*time.Hour)), // overlaps R1 and R3
		mkRoute("R3", base.Add(5*time.Hour), base.Add(7*time.Hour)),
	}

	if got := CountOverlappingPairs(routes, 0); got != 2 {
		t.Errorf("CountOverlappingPairs = %d, want 2", got)
	}
	// R1 ends 12:00 and R3 starts 13:00; a 90m turnaround collides them too.
	if got := CountOverlappingPairs(routes, 90*time.Minute); got != 3 {
		t.Errorf("CountOverlappingPairs with turnaround = %d, want 3", got)
	}
	if got := CountOverlappingPairs(nil, 0); got != 0 {
		t.Errorf("CountOverlappingPairs(nil) = %d, want 0", got)
	}
}
