package charge

import (
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
)

// BuildAvailability computes the per-slot charging availability of each
// vehicle. A VOR vehicle is fully unavailable; an on-route vehicle is
// unavailable until its return ETA; slots inside a planned route window,
// extended backwards by the departure buffer, are unavailable.
func BuildAvailability(slots []Slot, states []VehicleChargeState, routesByVehicle map[int][]*fleet.Route, departureBuffer time.Duration) map[int][]bool {
	availability := make(map[int][]bool, len(states))

	for _, state := range states {
		avail := make([]bool, len(slots))

		if state.Status == "VOR" {
			availability[state.VehicleID] = avail
			continue
		}

		for i, slot := range slots {
			avail[i] = true

			// Still out on a route.
			if !state.ReturnETA.IsZero() && slot.Start.Before(state.ReturnETA) && state.CurrentRoute != "" {
				avail[i] = false
				continue
			}

			// Inside a planned route window (with pre-departure buffer).
			slotEnd := slot.Start.Add(SlotDuration)
			for _, route := range routesByVehicle[state.VehicleID] {
				blockStart := route.PlanStart.Add(-departureBuffer)
				if slot.Start.Before(route.PlanEnd) && slotEnd.After(blockStart) {
					avail[i] = false
					break
				}
			}
		}

		availability[state.VehicleID] = avail
	}

	return availability
}

// BuildCheckpoints derives the route energy checkpoints per vehicle. Routes
// are walked in departure order; required energy applies the safety factor
// and accumulates across the sequence. Gaps shorter than the back-to-back
// threshold flag the earlier route.
func BuildCheckpoints(states []VehicleChargeState, routesByVehicle map[int][]*fleet.Route, safetyFactor float64, backToBackThreshold time.Duration) map[int][]Checkpoint {
	if safetyFactor <= 0 {
		safetyFactor = DefaultSafetyFactor
	}

	checkpoints := make(map[int][]Checkpoint)
	for _, state := range states {
		routes := routesByVehicle[state.VehicleID]
		if len(routes) == 0 {
			continue
		}

		ordered := make([]*fleet.Route, len(routes))
		copy(ordered, routes)
		fleet.SortRoutesByStart(ordered)

		efficiency := state.Efficiency
		if efficiency <= 0 {
			efficiency = fleet.DefaultFleetEfficiency
		}

		cumulative := 0.0
		cps := make([]Checkpoint, 0, len(ordered))
		for i, route := range ordered {
			required := route.Mileage * efficiency * safetyFactor
			if route.EnergyKWh > 0 {
				required = route.EnergyKWh * safetyFactor
			}
			cumulative += required

			cp := Checkpoint{
				RouteID:       route.ID,
				VehicleID:     state.VehicleID,
				Departure:     route.PlanStart,
				Return:        route.PlanEnd,
				Mileage:       route.Mileage,
				Efficiency:    efficiency,
				RequiredKWh:   required,
				CumulativeKWh: cumulative,
				SequenceIndex: i,
			}
			if i+1 < len(ordered) {
				gap := ordered[i+1].PlanStart.Sub(route.PlanEnd)
				cp.GapToNext = gap
				cp.BackToBack = gap < backToBackThreshold
			}
			cps = append(cps, cp)
		}
		checkpoints[state.VehicleID] = cps
	}

	return checkpoints
}
