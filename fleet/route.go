package fleet

import (
	"fmt"
	"sort"
	"time"
)

// Route status codes as persisted: N = new, A = allocated, C = completed,
// X = cancelled.
const (
	RouteStatusNew       = "N"
	RouteStatusAllocated = "A"
	RouteStatusCompleted = "C"
	RouteStatusCancelled = "X"
)

// Route is one planned delivery route out of a depot site. VehicleID 0 means
// no pre-assignment; stores canonicalize null and negative ids to 0.
type Route struct {
	ID          string
	SiteID      int
	Alias       string
	Status      string
	PlanStart   time.Time
	PlanEnd     time.Time
	Mileage     float64
	Orders      int
	VehicleID   int
	ActualStart time.Time
	ActualEnd   time.Time
	EnergyKWh   float64 // 0 when not supplied by upstream scheduling data
}

// DurationHours returns the planned duration in hours.
func (r *Route) DurationHours() float64 {
	return r.PlanEnd.Sub(r.PlanStart).Hours()
}

// DurationMinutes returns the planned duration in minutes.
func (r *Route) DurationMinutes() float64 {
	return r.PlanEnd.Sub(r.PlanStart).Minutes()
}

// OverlapsWith reports whether two routes overlap in time, requiring at least
// the given turnaround between them to count as disjoint.
func (r *Route) OverlapsWith(other *Route, turnaround time.Duration) bool {
	if !r.PlanEnd.Add(turnaround).After(other.PlanStart) {
		return false
	}
	if !other.PlanEnd.Add(turnaround).After(r.PlanStart) {
		return false
	}
	return true
}

// CanPrecede reports whether this route can run before next on the same
// vehicle: end plus turnaround must not pass the next start.
func (r *Route) CanPrecede(next *Route, turnaround time.Duration) bool {
	return !r.PlanEnd.Add(turnaround).After(next.PlanStart)
}

// EnergyFeasible reports whether the vehicle's available energy covers this
// route plus a safety margin.
func (r *Route) EnergyFeasible(v *Vehicle, marginKWh float64) bool {
	return v.AvailableEnergy() >= v.EnergyRequired(r.Mileage)+marginKWh
}

// ReturnSOC returns the expected SOC percent after driving this route from
// the given starting SOC.
func (r *Route) ReturnSOC(v *Vehicle, startSOCPercent float64) float64 {
	if v.BatteryCapacity <= 0 {
		return 0
	}
	startEnergy := startSOCPercent / 100.0 * v.BatteryCapacity
	remaining := startEnergy - v.EnergyRequired(r.Mileage)
	return remaining / v.BatteryCapacity * 100.0
}

// String returns a short identity for logs.
func (r *Route) String() string {
	return fmt.Sprintf("route %s (%s, start=%s, %.1f mi)",
		r.ID, r.Alias, r.PlanStart.Format("2006-01-02 15:04"), r.Mileage)
}

// SortRoutesByStart sorts routes in place by planned start, ties by id for
// deterministic ordering.
func SortRoutesByStart(routes []*Route) {
	sort.Slice(routes, func(i, j int) bool {
		if !routes[i].PlanStart.Equal(routes[j].PlanStart) {
			return routes[i].PlanStart.Before(routes[j].PlanStart)
		}
		return routes[i].ID < routes[j].ID
	})
}

// CountOverlappingPairs counts the route pairs that overlap in time given the
// turnaround requirement.
func CountOverlappingPairs(routes []*Route, turnaround time.Duration) int {
	count := 0
	for i := 0; i < len(routes); i++ {
		for j := i + 1; j < len(routes); j++ {
			if routes[i].OverlapsWith(routes[j], turnaround) {
				count++
			}
		}
	}
	return count
}
