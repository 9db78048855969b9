// Package charge plans half-hourly charging power per vehicle over a
// planning window, minimizing electricity cost under site capacity, vehicle
// availability, route energy checkpoints and target-SOC requirements.
//
// Exact formulation, for an external LP solver: power p[t,v] in
// [0, ac_rate_v] (zero where unavailable), cumulative energy
// E[t] = E[t-1] + p*0.5, checkpoint k requires
// E[k-1] >= max(0, cumulative_required - current_soc_kwh), per-slot site
// capacity sum_v p[t,v] <= max(0, capacity - load_forecast[t]), final energy
// bounded by battery headroom, and a shortfall variable against the target
// SOC. Objective: sum cost[t]*p[t,v]*0.5 + lambda*sum shortfall_v. The
// in-tree Greedy solver approximates this and is the fallback.
package charge

import (
	"time"
)

// SlotDuration is the market settlement period.
const SlotDuration = 30 * time.Minute

// SlotHours is the slot length in hours, the power-to-energy factor.
const SlotHours = 0.5

// Defaults for the scheduling model.
const (
	DefaultTargetSOCPercent         = 75.0
	DefaultSafetyFactor             = 1.15
	DefaultDepartureBuffer          = 60 * time.Minute
	DefaultBackToBackThreshold      = 90 * time.Minute
	DefaultTriadPenaltyFactor       = 100.0
	DefaultSyntheticTimePriceFactor = 0.01
	DefaultShortfallPenalty         = 1000.0
	DefaultTimeLimit                = 300 * time.Second
	DefaultPowerFactor              = 0.85
	DefaultSiteUsageFactor          = 0.90
)

// PricePoint is one half-hour of market and site data as loaded from storage.
type PricePoint struct {
	Timestamp      time.Time
	EnergyPrice    float64 // currency per kWh
	TriadFlag      bool
	LoadForecastKW float64
}

// Slot is one half-hour of the planning window.
type Slot struct {
	Start          time.Time
	Price          float64
	Triad          bool
	LoadForecastKW float64
}

// FloorToSlot rounds a time down to its settlement period boundary.
func FloorToSlot(t time.Time) time.Time {
	return t.Truncate(SlotDuration)
}

// BuildSlots lays out the half-hour grid over [start, end) and fills each
// slot from the matching price point. Slots with no price data carry zero
// price and forecast; callers validate coverage separately.
func BuildSlots(start, end time.Time, prices []PricePoint) []Slot {
	start = FloorToSlot(start)

	byTime := make(map[time.Time]PricePoint, len(prices))
	for _, p := range prices {
		byTime[FloorToSlot(p.Timestamp)] = p
	}

	var slots []Slot
	for t := start; t.Before(end); t = t.Add(SlotDuration) {
		slot := Slot{Start: t}
		if p, ok := byTime[t]; ok {
			slot.Price = p.EnergyPrice
			slot.Triad = p.TriadFlag
			slot.LoadForecastKW = p.LoadForecastKW
		}
		slots = append(slots, slot)
	}
	return slots
}

// FindSlotIndex returns the index of the first slot starting at or after
// target, or len(slots) when the target is past the window.
func FindSlotIndex(slots []Slot, target time.Time) int {
	for i, slot := range slots {
		if !slot.Start.Before(target) {
			return i
		}
	}
	return len(slots)
}

// SiteCapacityKW derives the usable site capacity from the agreed supply.
func SiteCapacityKW(agreedKVA, powerFactor, usageFactor float64) float64 {
	if agreedKVA <= 0 {
		return 0
	}
	if powerFactor <= 0 {
		powerFactor = DefaultPowerFactor
	}
	if usageFactor <= 0 {
		usageFactor = DefaultSiteUsageFactor
	}
	return agreedKVA * powerFactor * usageFactor
}
