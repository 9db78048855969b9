package constraints

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/KKFPS/allocation-v2/fleet"
)

// DisconnectedKey is the charger cost map key applying to vehicles that are
// not plugged into any charger.
const DisconnectedKey = "DISC"

// ChargerPreference is the soft constraint steering early-departing routes
// onto vehicles occupying the most expensive chargers, so those bays free up
// first. The r-th departing route in the window should go to the vehicle
// sitting on the r-th most expensive charger; a match earns that vehicle its
// charger cost as a bonus, a mismatch earns nothing.
type ChargerPreference struct {
	// Costs maps charger id (as string) or DisconnectedKey to a cost figure.
	// Unmapped chargers cost zero.
	Costs map[string]float64

	// Daily activity window in whole hours, [WindowStart, WindowEnd). The
	// defaults 0 and 24 keep the constraint active all day; a start above
	// the end wraps past midnight.
	WindowStart int
	WindowEnd   int

	// ApplyToPosition selects which routes of the sequence are scored:
	// "first" (default), "all", or "longest".
	ApplyToPosition string
}

// NewChargerPreference builds the constraint from a decoded config map. The
// cost map accepts either a JSON object {"3": 0.42, "DISC": 0.1} or the list
// form "[1,2]:3,[7]:0,[DISC]:2".
func NewChargerPreference(cfg map[string]any) *ChargerPreference {
	return &ChargerPreference{
		Costs:           ParseChargerCostMap(cfg["map"]),
		WindowStart:     cfgInt(cfg, "time_window_start", 0),
		WindowEnd:       cfgInt(cfg, "time_window_end", 24),
		ApplyToPosition: cfgString(cfg, "apply_to_position", "first"),
	}
}

func (c *ChargerPreference) Name() string { return "charger_preference" }
func (c *ChargerPreference) IsHard() bool { return false }

func (c *ChargerPreference) Evaluate(ctx *EvalContext) Result {
	if len(c.Costs) == 0 || len(ctx.Sequence) == 0 {
		return Result{}
	}

	// A vehicle on a free charger has nothing to gain from departing early.
	vehicleCost := c.vehicleChargerCost(ctx.Vehicle.ID, ctx.VehicleChargers)
	if vehicleCost == 0 {
		return Result{}
	}

	vehicleRank := c.rankOf(ctx.Vehicle.ID, ctx)
	departureRank := c.departureRanks(ctx.AllRoutes)

	var result Result
	for _, route := range c.scoredRoutes(ctx.Sequence) {
		rank, ok := departureRank[route.ID]
		if !ok {
			continue
		}
		if rank == vehicleRank {
			result.ScoreDelta += vehicleCost
			result.Tags = append(result.Tags, fmt.Sprintf("charger_match:%s", route.ID))
		}
	}
	return result
}

// inWindow reports whether an hour of day falls inside the activity window.
func (c *ChargerPreference) inWindow(hour int) bool {
	if c.WindowStart <= c.WindowEnd {
		return hour >= c.WindowStart && hour < c.WindowEnd
	}
	return hour >= c.WindowStart || hour < c.WindowEnd
}

// scoredRoutes selects the routes of the sequence this constraint scores.
func (c *ChargerPreference) scoredRoutes(sequence []*fleet.Route) []*fleet.Route {
	switch c.ApplyToPosition {
	case "all":
		return sequence
	case "longest":
		longest := sequence[0]
		for _, route := range sequence[1:] {
			if route.DurationMinutes() > longest.DurationMinutes() {
				longest = route
			}
		}
		return []*fleet.Route{longest}
	default: // "first"
		return sequence[:1]
	}
}

// rankOf returns the position of a vehicle when every vehicle is ordered by
// charger cost descending. Vehicles without a mapped charger rank with cost
// zero; ties keep the input vehicle order.
func (c *ChargerPreference) rankOf(vehicleID int, ctx *EvalContext) int {
	type entry struct {
		vehicleID int
		cost      float64
	}
	entries := make([]entry, 0, len(ctx.AllVehicles))
	for _, v := range ctx.AllVehicles {
		entries = append(entries, entry{v.ID, c.vehicleChargerCost(v.ID, ctx.VehicleChargers)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].cost > entries[j].cost
	})

	for i, e := range entries {
		if e.vehicleID == vehicleID {
			return i
		}
	}
	return -1
}

func (c *ChargerPreference) vehicleChargerCost(vehicleID int, chargers map[int]Charger) float64 {
	if charger, ok := chargers[vehicleID]; ok {
		return c.Costs[strconv.Itoa(charger.ID)]
	}
	return c.Costs[DisconnectedKey]
}

// departureRanks indexes the routes departing inside the activity window by
// departure order, earliest first.
func (c *ChargerPreference) departureRanks(routes []*fleet.Route) map[string]int {
	ordered := make([]*fleet.Route, 0, len(routes))
	for _, route := range routes {
		if c.inWindow(route.PlanStart.Hour()) {
			ordered = append(ordered, route)
		}
	}
	fleet.SortRoutesByStart(ordered)

	ranks := make(map[string]int, len(ordered))
	for i, route := range ordered {
		ranks[route.ID] = i
	}
	return ranks
}

var costMapEntry = regexp.MustCompile(`\[([^\]]*)\]\s*:\s*(-?\d+(?:\.\d+)?)`)

// ParseChargerCostMap normalizes the two accepted cost map encodings into
// map[chargerID string]cost. Unparseable input yields an empty map.
func ParseChargerCostMap(raw any) map[string]float64 {
	costs := make(map[string]float64)

	switch v := raw.(type) {
	case map[string]any:
		for key, value := range v {
			switch f := value.(type) {
			case float64:
				costs[key] = f
			case string:
				if parsed, err := strconv.ParseFloat(f, 64); err == nil {
					costs[key] = parsed
				}
			}
		}

	case string:
		// List form: "[1,2,3]:3,[7]:0,[DISC]:2"
		for _, m := range costMapEntry.FindAllStringSubmatch(v, -1) {
			cost, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			for _, id := range strings.Split(m[1], ",") {
				if id = strings.TrimSpace(id); id != "" {
					costs[id] = cost
				}
			}
		}
	}

	return costs
}
