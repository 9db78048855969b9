package constraints

import (
	"fmt"
	"time"
)

// DefaultSwapLookback bounds how far back a prior allocation still counts
// for swap minimization.
const DefaultSwapLookback = 24 * time.Hour

// SwapMinimization is the soft constraint rewarding sequences that keep
// routes on the vehicle they were allocated to in the previous run, so
// replanning disturbs drivers as little as possible.
type SwapMinimization struct {
	Bonus    float64
	Lookback time.Duration
}

// NewSwapMinimization builds the constraint from a decoded config map.
func NewSwapMinimization(cfg map[string]any) *SwapMinimization {
	lookbackHours := cfgFloat(cfg, "lookback_hours", DefaultSwapLookback.Hours())
	return &SwapMinimization{
		Bonus:    cfgFloat(cfg, "bonus_weight", 0.5),
		Lookback: time.Duration(lookbackHours * float64(time.Hour)),
	}
}

func (c *SwapMinimization) Name() string { return "swap_minimization" }
func (c *SwapMinimization) IsHard() bool { return false }

// Evaluate adds the bonus once per route that stays with its previous
// vehicle. PreviousVehicles is already filtered to the lookback window by
// the loader.
func (c *SwapMinimization) Evaluate(ctx *EvalContext) Result {
	var result Result
	for _, route := range ctx.Sequence {
		if prev, ok := ctx.PreviousVehicles[route.ID]; ok && prev == ctx.Vehicle.ID {
			result.ScoreDelta += c.Bonus
			result.Tags = append(result.Tags, fmt.Sprintf("kept_vehicle:%s", route.ID))
		}
	}
	return result
}
