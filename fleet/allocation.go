package fleet

import (
	"fmt"
	"sort"
	"time"
)

// Allocation run statuses as persisted on the monitor record.
const (
	AllocationStatusNew          = "N" // run created, not finished
	AllocationStatusAccepted     = "A" // passed the quality gate and persisted
	AllocationStatusFailed       = "F" // rejected by the quality gate
	AllocationStatusPersistError = "P" // accepted but persistence failed
)

// DefaultMinQualityScore is the quality gate: results scoring below this are
// rejected rather than persisted.
const DefaultMinQualityScore = -4.0

// PlaceholderArrivalSOC is recorded on allocations until telematics confirms
// the real arrival SOC.
const PlaceholderArrivalSOC = 80.0

// RouteAllocation assigns one route to one vehicle.
type RouteAllocation struct {
	RouteID             string
	VehicleID           int
	EstimatedArrival    time.Time
	EstimatedArrivalSOC float64
	Cost                float64
}

// RouteSequence is an ordered set of routes assigned to a single vehicle.
type RouteSequence struct {
	VehicleID int
	Routes    []*Route
	TotalCost float64
}

// AddRoute appends a route and accumulates its cost share.
func (s *RouteSequence) AddRoute(r *Route, cost float64) {
	s.Routes = append(s.Routes, r)
	s.TotalCost += cost
}

// AllocationResult is the complete outcome of one allocation run. Build it
// with the Add/Mark helpers, then treat it as immutable.
type AllocationResult struct {
	AllocationID      int64
	SiteID            int
	RunTime           time.Time
	WindowStart       time.Time
	WindowEnd         time.Time
	Allocations       []RouteAllocation
	UnallocatedRoutes []string
	TotalScore        float64
	RoutesInWindow    int
	RoutesAllocated   int
	RoutesOverlapping int
	Status            string
}

// NewAllocationResult creates an empty result in the New status.
func NewAllocationResult(siteID int, runTime, windowStart, windowEnd time.Time) *AllocationResult {
	return &AllocationResult{
		SiteID:      siteID,
		RunTime:     runTime,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      AllocationStatusNew,
	}
}

// Add records one route allocation and updates the totals.
func (r *AllocationResult) Add(a RouteAllocation) {
	r.Allocations = append(r.Allocations, a)
	r.RoutesAllocated++
	r.TotalScore += a.Cost
}

// MarkUnallocated records a route that no vehicle could take.
func (r *AllocationResult) MarkUnallocated(routeID string) {
	r.UnallocatedRoutes = append(r.UnallocatedRoutes, routeID)
}

// Acceptable reports whether the result passes the quality gate. A result
// covering none of the window's routes fails regardless of score.
func (r *AllocationResult) Acceptable(minScore float64) bool {
	if r.RoutesInWindow > 0 && r.RoutesAllocated == 0 {
		return false
	}
	return r.TotalScore >= minScore
}

// VehicleSequences groups allocated route ids by vehicle, preserving
// allocation order within each vehicle.
func (r *AllocationResult) VehicleSequences() map[int][]string {
	sequences := make(map[int][]string)
	for _, a := range r.Allocations {
		sequences[a.VehicleID] = append(sequences[a.VehicleID], a.RouteID)
	}
	return sequences
}

// VehicleIDs returns the vehicles used by this result in ascending order.
func (r *AllocationResult) VehicleIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, a := range r.Allocations {
		if !seen[a.VehicleID] {
			seen[a.VehicleID] = true
			ids = append(ids, a.VehicleID)
		}
	}
	sort.Ints(ids)
	return ids
}

// String returns a one-line summary for logs.
func (r *AllocationResult) String() string {
	return fmt.Sprintf("allocation %d: %d/%d routes, score %.2f, status %s",
		r.AllocationID, r.RoutesAllocated, r.RoutesInWindow, r.TotalScore, r.Status)
}
