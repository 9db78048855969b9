package charge

import (
	"context"
	"fmt"
	"time"

	"github.com/KKFPS/allocation-v2/solver"
)

// Problem is the scheduling model handed to a solver.
type Problem struct {
	Slots        []Slot
	Vehicles     []VehicleChargeState
	Availability map[int][]bool
	Checkpoints  map[int][]Checkpoint

	SiteCapacityKW   float64
	TargetSOCPercent float64

	SyntheticTimePriceFactor float64
	TriadPenaltyFactor       float64
	ShortfallPenalty         float64
	TimeLimit                time.Duration
}

// NewProblem builds a problem with defaulted tuning parameters.
func NewProblem(slots []Slot, vehicles []VehicleChargeState) *Problem {
	return &Problem{
		Slots:                    slots,
		Vehicles:                 vehicles,
		Availability:             make(map[int][]bool),
		Checkpoints:              make(map[int][]Checkpoint),
		TargetSOCPercent:         DefaultTargetSOCPercent,
		SyntheticTimePriceFactor: DefaultSyntheticTimePriceFactor,
		TriadPenaltyFactor:       DefaultTriadPenaltyFactor,
		ShortfallPenalty:         DefaultShortfallPenalty,
		TimeLimit:                DefaultTimeLimit,
	}
}

// Validate checks the problem for structural errors.
func (p *Problem) Validate() error {
	if len(p.Slots) == 0 {
		return fmt.Errorf("%w: no time slots in planning window", solver.ErrData)
	}
	if p.TargetSOCPercent < 0 || p.TargetSOCPercent > 100 {
		return fmt.Errorf("%w: target SOC %.1f%% out of range", solver.ErrConfig, p.TargetSOCPercent)
	}
	for _, v := range p.Vehicles {
		if v.BatteryCapacity <= 0 {
			return fmt.Errorf("%w: vehicle %d has no battery capacity", solver.ErrData, v.VehicleID)
		}
		if avail, ok := p.Availability[v.VehicleID]; ok && len(avail) != len(p.Slots) {
			return fmt.Errorf("%w: vehicle %d availability length %d != %d slots",
				solver.ErrData, v.VehicleID, len(avail), len(p.Slots))
		}
	}
	return nil
}

// CostVector returns the per-slot unit cost: market price plus the synthetic
// time price (earlier slots cost slightly more so charging drifts late when
// prices tie) plus a flat penalty on triad-flagged slots. The penalty is
// additive so zero-priced triad slots are still repelled.
func (p *Problem) CostVector() []float64 {
	n := len(p.Slots)
	costs := make([]float64, n)
	for t, slot := range p.Slots {
		cost := slot.Price
		if n > 1 {
			cost += p.SyntheticTimePriceFactor * float64(n-t) / float64(n)
		}
		if slot.Triad {
			cost += p.TriadPenaltyFactor
		}
		costs[t] = cost
	}
	return costs
}

// Headroom returns the per-slot site power available for charging.
func (p *Problem) Headroom() []float64 {
	headroom := make([]float64, len(p.Slots))
	for t, slot := range p.Slots {
		h := p.SiteCapacityKW - slot.LoadForecastKW
		if h < 0 {
			h = 0
		}
		headroom[t] = h
	}
	return headroom
}

// TargetEnergy returns the energy a vehicle needs to reach the target SOC,
// never below the cumulative checkpoint requirement and never above the
// battery headroom.
func (p *Problem) TargetEnergy(v *VehicleChargeState) float64 {
	target := p.TargetSOCPercent / 100.0 * v.BatteryCapacity
	need := target - v.SOCKWh
	if cps := p.Checkpoints[v.VehicleID]; len(cps) > 0 {
		routeNeed := cps[len(cps)-1].CumulativeKWh - v.SOCKWh
		if routeNeed > need {
			need = routeNeed
		}
	}
	if need < 0 {
		need = 0
	}
	if max := v.MissingEnergy(); need > max {
		need = max
	}
	return need
}

// ProblemSolver solves charge scheduling problems.
type ProblemSolver interface {
	Solve(ctx context.Context, p *Problem) (*Schedule, error)
}
