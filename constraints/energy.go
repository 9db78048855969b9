package constraints

import "fmt"

// EnergyFeasibility is the hard constraint requiring the vehicle to reach the
// start of every route in the sequence with enough energy, accounting for
// charge recovered in the gaps between routes.
type EnergyFeasibility struct {
	MarginKWh float64
}

// NewEnergyFeasibility builds the constraint from a decoded config map.
func NewEnergyFeasibility(cfg map[string]any) *EnergyFeasibility {
	return &EnergyFeasibility{
		MarginKWh: cfgFloat(cfg, "safety_margin_kwh", 5.0),
	}
}

func (c *EnergyFeasibility) Name() string { return "energy_feasibility" }
func (c *EnergyFeasibility) IsHard() bool { return true }

// Evaluate walks the sequence front to back. Between routes the vehicle
// recovers energy at its charger rate (DC if it sits on a DC charger, else
// AC) for the duration of the gap, capped at battery capacity.
func (c *EnergyFeasibility) Evaluate(ctx *EvalContext) Result {
	v := ctx.Vehicle
	energy := v.AvailableEnergy()

	charger, plugged := ctx.VehicleChargers[v.ID]
	rate := v.ChargePowerACKW
	if plugged {
		rate = v.ChargePower(charger.MaxPowerKW, charger.IsDC())
	}

	for i, route := range ctx.Sequence {
		required := v.EnergyRequired(route.Mileage)
		if energy < required+c.MarginKWh {
			return Result{
				HardViolation: true,
				Tags: []string{fmt.Sprintf("energy_short:%s:%.1fkWh", route.ID,
					required+c.MarginKWh-energy)},
			}
		}
		energy -= required

		if i+1 < len(ctx.Sequence) {
			gap := ctx.Sequence[i+1].PlanStart.Sub(route.PlanEnd)
			if gap > 0 && rate > 0 {
				energy += rate * gap.Hours()
				if energy > v.BatteryCapacity {
					energy = v.BatteryCapacity
				}
			}
		}
	}

	return Result{}
}

// EnergyOptimization is the soft constraint rewarding sequences that leave
// the vehicle with comfortable remaining energy. Thresholds are remaining-SOC
// percentages in descending order; scores has one more entry than thresholds,
// the last applying below every threshold.
type EnergyOptimization struct {
	Thresholds []float64
	Scores     []float64
}

// NewEnergyOptimization builds the constraint from a decoded config map.
// Invalid threshold/score shapes fall back to the defaults.
func NewEnergyOptimization(cfg map[string]any) *EnergyOptimization {
	c := &EnergyOptimization{
		Thresholds: []float64{50.0, 30.0},
		Scores:     []float64{0.5, 0.0, -1.0},
	}
	thresholds := cfgFloatSlice(cfg, "thresholds")
	scores := cfgFloatSlice(cfg, "scores")
	if len(thresholds) > 0 && len(scores) == len(thresholds)+1 {
		c.Thresholds = thresholds
		c.Scores = scores
	}
	return c
}

func (c *EnergyOptimization) Name() string { return "energy_optimization" }
func (c *EnergyOptimization) IsHard() bool { return false }

func (c *EnergyOptimization) Evaluate(ctx *EvalContext) Result {
	v := ctx.Vehicle
	if v.BatteryCapacity <= 0 {
		return Result{}
	}

	energy := v.AvailableEnergy()
	for _, route := range ctx.Sequence {
		energy -= v.EnergyRequired(route.Mileage)
	}
	remainingPercent := energy / v.BatteryCapacity * 100.0

	for i, threshold := range c.Thresholds {
		if remainingPercent >= threshold {
			return Result{ScoreDelta: c.Scores[i]}
		}
	}
	return Result{ScoreDelta: c.Scores[len(c.Scores)-1]}
}

func cfgFloatSlice(cfg map[string]any, key string) []float64 {
	arr, ok := cfg[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case float64:
			out = append(out, v)
		case int64:
			out = append(out, float64(v))
		default:
			return nil
		}
	}
	return out
}
