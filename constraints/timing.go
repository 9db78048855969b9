package constraints

import (
	"fmt"
	"time"
)

// TurnaroundStrict is the hard constraint requiring a minimum gap between
// consecutive routes on the same vehicle.
type TurnaroundStrict struct {
	MinGap time.Duration
}

// NewTurnaroundStrict builds the constraint from a decoded config map.
func NewTurnaroundStrict(cfg map[string]any) *TurnaroundStrict {
	return &TurnaroundStrict{
		MinGap: time.Duration(cfgInt(cfg, "minimum_minutes", 45)) * time.Minute,
	}
}

func (c *TurnaroundStrict) Name() string { return "turnaround_time_strict" }
func (c *TurnaroundStrict) IsHard() bool { return true }

func (c *TurnaroundStrict) Evaluate(ctx *EvalContext) Result {
	for i := 0; i+1 < len(ctx.Sequence); i++ {
		prev, next := ctx.Sequence[i], ctx.Sequence[i+1]
		if !prev.CanPrecede(next, c.MinGap) {
			return Result{
				HardViolation: true,
				Tags:          []string{fmt.Sprintf("turnaround_short:%s->%s", prev.ID, next.ID)},
			}
		}
	}
	return Result{}
}

// TurnaroundPreferred is the soft constraint penalizing tight (but legal)
// turnarounds between consecutive routes. Gaps below the standard threshold
// pay the standard penalty, gaps below the optimal threshold the lighter one.
type TurnaroundPreferred struct {
	StandardGap     time.Duration
	OptimalGap      time.Duration
	PenaltyStandard float64
	PenaltyOptimal  float64
}

// NewTurnaroundPreferred builds the constraint from a decoded config map.
func NewTurnaroundPreferred(cfg map[string]any) *TurnaroundPreferred {
	return &TurnaroundPreferred{
		StandardGap:     time.Duration(cfgInt(cfg, "standard_minutes", 75)) * time.Minute,
		OptimalGap:      time.Duration(cfgInt(cfg, "optimal_minutes", 90)) * time.Minute,
		PenaltyStandard: cfgFloat(cfg, "penalty_standard", -2.0),
		PenaltyOptimal:  cfgFloat(cfg, "penalty_optimal", -1.0),
	}
}

func (c *TurnaroundPreferred) Name() string { return "turnaround_time_preferred" }
func (c *TurnaroundPreferred) IsHard() bool { return false }

func (c *TurnaroundPreferred) Evaluate(ctx *EvalContext) Result {
	var result Result
	for i := 0; i+1 < len(ctx.Sequence); i++ {
		gap := ctx.Sequence[i+1].PlanStart.Sub(ctx.Sequence[i].PlanEnd)
		switch {
		case gap < c.StandardGap:
			result.ScoreDelta += c.PenaltyStandard
			result.Tags = append(result.Tags, fmt.Sprintf("tight_turnaround:%s", ctx.Sequence[i+1].ID))
		case gap < c.OptimalGap:
			result.ScoreDelta += c.PenaltyOptimal
		}
	}
	return result
}

// ShiftHours is the hard constraint bounding driver shift length. In
// "first_to_last" mode (default) the shift spans first departure to last
// return; "cumulative" mode sums route durations instead.
type ShiftHours struct {
	MaxHours   float64
	PreBuffer  time.Duration
	PostBuffer time.Duration
	Mode       string
}

// NewShiftHours builds the constraint from a decoded config map.
func NewShiftHours(cfg map[string]any) *ShiftHours {
	return &ShiftHours{
		MaxHours:   cfgFloat(cfg, "max_hours", 7.5),
		PreBuffer:  time.Duration(cfgFloat(cfg, "pre_shift_buffer_hours", 0.5) * float64(time.Hour)),
		PostBuffer: time.Duration(cfgFloat(cfg, "post_shift_buffer_hours", 0.5) * float64(time.Hour)),
		Mode:       cfgString(cfg, "calculation_method", "first_to_last"),
	}
}

func (c *ShiftHours) Name() string { return "shift_hours_strict" }
func (c *ShiftHours) IsHard() bool { return true }

func (c *ShiftHours) Evaluate(ctx *EvalContext) Result {
	if len(ctx.Sequence) == 0 {
		return Result{}
	}

	var worked time.Duration
	if c.Mode == "cumulative" {
		for _, route := range ctx.Sequence {
			worked += route.PlanEnd.Sub(route.PlanStart)
		}
	} else {
		first := ctx.Sequence[0]
		last := ctx.Sequence[len(ctx.Sequence)-1]
		worked = last.PlanEnd.Sub(first.PlanStart)
	}
	worked += c.PreBuffer + c.PostBuffer

	if worked.Hours() > c.MaxHours {
		return Result{
			HardViolation: true,
			Tags:          []string{fmt.Sprintf("shift_too_long:%.1fh", worked.Hours())},
		}
	}
	return Result{}
}

// MinimumSoonness is the hard constraint requiring the first route to start
// no sooner than a settling period after the current time, so a run never
// allocates a departure the depot cannot react to.
type MinimumSoonness struct {
	Lead time.Duration
}

// NewMinimumSoonness builds the constraint from a decoded config map.
func NewMinimumSoonness(cfg map[string]any) *MinimumSoonness {
	hours := cfgFloat(cfg, "hours", 0.75)
	return &MinimumSoonness{Lead: time.Duration(hours * float64(time.Hour))}
}

func (c *MinimumSoonness) Name() string { return "minimum_soonness" }
func (c *MinimumSoonness) IsHard() bool { return true }

func (c *MinimumSoonness) Evaluate(ctx *EvalContext) Result {
	if len(ctx.Sequence) == 0 {
		return Result{}
	}
	earliest := ctx.Now.Add(c.Lead)
	if ctx.Sequence[0].PlanStart.Before(earliest) {
		return Result{
			HardViolation: true,
			Tags:          []string{fmt.Sprintf("too_soon:%s", ctx.Sequence[0].ID)},
		}
	}
	return Result{}
}

// RouteOverlap is the mandatory hard constraint forbidding any pairwise time
// overlap inside a sequence. It cannot be disabled.
type RouteOverlap struct {
	Turnaround time.Duration
}

// NewRouteOverlap builds the constraint from a decoded config map.
func NewRouteOverlap(cfg map[string]any) *RouteOverlap {
	return &RouteOverlap{
		Turnaround: time.Duration(cfgInt(cfg, "turnaround_minutes", 0)) * time.Minute,
	}
}

func (c *RouteOverlap) Name() string { return "route_overlap" }
func (c *RouteOverlap) IsHard() bool { return true }

func (c *RouteOverlap) Evaluate(ctx *EvalContext) Result {
	for i := 0; i < len(ctx.Sequence); i++ {
		for j := i + 1; j < len(ctx.Sequence); j++ {
			if ctx.Sequence[i].OverlapsWith(ctx.Sequence[j], c.Turnaround) {
				return Result{
					HardViolation: true,
					Tags: []string{fmt.Sprintf("overlap:%s/%s",
						ctx.Sequence[i].ID, ctx.Sequence[j].ID)},
				}
			}
		}
	}
	return Result{}
}
