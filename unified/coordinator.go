// Package unified couples route allocation with charge scheduling. In
// integrated mode the selected sequences gate the route energy checkpoints:
// a route only forces charging if the allocation actually takes it (big-M
// relaxation in the exact model; the greedy path simply schedules the
// selected sequences). The combined objective weighs the allocation score
// against the scheduling cost.
package unified

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/KKFPS/allocation-v2/allocator"
	"github.com/KKFPS/allocation-v2/charge"
	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/solver"
)

// Mode selects what the coordinator optimizes.
type Mode string

const (
	ModeAllocationOnly Mode = "allocation_only"
	ModeSchedulingOnly Mode = "scheduling_only"
	ModeIntegrated     Mode = "integrated"
)

// Default time limits per mode.
const (
	DefaultAllocationTimeLimit = 30 * time.Second
	DefaultSchedulingTimeLimit = 300 * time.Second
	DefaultIntegratedTimeLimit = 330 * time.Second
)

// Config tunes the coordinator.
type Config struct {
	Mode             Mode
	AllocationWeight float64
	SchedulingWeight float64
	FixAllocation    bool
	FixScheduling    bool
	AllocationLimit  time.Duration
	SchedulingLimit  time.Duration
	IntegratedLimit  time.Duration
	TargetSOCPercent float64
	MinQualityScore  float64
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Mode:             "",
		AllocationWeight: 1.0,
		SchedulingWeight: 1.0,
		AllocationLimit:  DefaultAllocationTimeLimit,
		SchedulingLimit:  DefaultSchedulingTimeLimit,
		IntegratedLimit:  DefaultIntegratedTimeLimit,
		TargetSOCPercent: charge.DefaultTargetSOCPercent,
		MinQualityScore:  fleet.DefaultMinQualityScore,
	}
}

// Input bundles the data the coordinator may need. AllocationModel drives
// allocation; ChargeProblem drives scheduling; RoutesByVehicle maps every
// candidate route to fleet.Route for checkpoint construction.
type Input struct {
	SiteID      int
	RunTime     time.Time
	WindowStart time.Time
	WindowEnd   time.Time

	AllocationModel *allocator.Model
	ChargeProblem   *charge.Problem

	SafetyFactor        float64
	BackToBackThreshold time.Duration
}

// Result is the unified outcome; Allocation and Schedule are nil for the
// modes that do not produce them.
type Result struct {
	Mode       Mode
	Allocation *fleet.AllocationResult
	Schedule   *charge.Schedule
	Objective  float64
	Outcome    solver.Outcome
	SolveTime  time.Duration
}

// Coordinator runs the selected mode over the input.
type Coordinator struct {
	cfg    Config
	alloc  *allocator.Allocator
	sched  charge.ProblemSolver
	logger *log.Logger
}

// New creates a coordinator. Nil sub-solvers fall back to the greedy
// implementations; a nil logger falls back to stdout.
func New(cfg Config, alloc *allocator.Allocator, sched charge.ProblemSolver, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(os.Stdout, "[UNIFIED] ", log.LstdFlags)
	}
	if alloc == nil {
		alloc = allocator.New(nil, logger)
	}
	if sched == nil {
		sched = charge.NewGreedy(logger)
	}
	if cfg.AllocationWeight == 0 && cfg.SchedulingWeight == 0 {
		cfg.AllocationWeight = 1.0
		cfg.SchedulingWeight = 1.0
	}
	return &Coordinator{cfg: cfg, alloc: alloc, sched: sched, logger: logger}
}

// ResolveMode picks the operating mode. An explicit mode wins; a fixed
// allocation means only scheduling remains, a fixed schedule means only
// allocation; with both inputs present the run is integrated; with one
// input, the mode that input serves.
func ResolveMode(cfg Config, hasAllocationInput, hasSchedulingInput bool) (Mode, error) {
	if cfg.Mode != "" {
		switch cfg.Mode {
		case ModeAllocationOnly, ModeSchedulingOnly, ModeIntegrated:
			return cfg.Mode, nil
		default:
			return "", fmt.Errorf("%w: unknown mode %q", solver.ErrConfig, cfg.Mode)
		}
	}
	switch {
	case cfg.FixAllocation:
		return ModeSchedulingOnly, nil
	case cfg.FixScheduling:
		return ModeAllocationOnly, nil
	case hasAllocationInput && hasSchedulingInput:
		return ModeIntegrated, nil
	case hasSchedulingInput:
		return ModeSchedulingOnly, nil
	case hasAllocationInput:
		return ModeAllocationOnly, nil
	default:
		return "", fmt.Errorf("%w: no allocation or scheduling input", solver.ErrData)
	}
}

// Run executes the resolved mode.
func (c *Coordinator) Run(ctx context.Context, in *Input) (*Result, error) {
	start := time.Now()

	mode, err := ResolveMode(c.cfg, in.AllocationModel != nil, in.ChargeProblem != nil)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("Running unified optimization in %s mode", mode)

	var result *Result
	switch mode {
	case ModeAllocationOnly:
		result, err = c.runAllocation(ctx, in)
	case ModeSchedulingOnly:
		result, err = c.runScheduling(ctx, in)
	case ModeIntegrated:
		result, err = c.runIntegrated(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	result.Mode = mode
	result.SolveTime = time.Since(start)
	return result, nil
}

func (c *Coordinator) runAllocation(ctx context.Context, in *Input) (*Result, error) {
	if in.AllocationModel == nil {
		return nil, fmt.Errorf("%w: allocation mode without allocation input", solver.ErrData)
	}
	m := in.AllocationModel
	if c.cfg.AllocationLimit > 0 {
		m.TimeLimit = c.cfg.AllocationLimit
	}

	sol, err := c.alloc.Solve(ctx, m)
	if err != nil {
		return nil, err
	}

	allocation := allocator.BuildResult(m, sol, in.SiteID, in.RunTime, in.WindowStart, in.WindowEnd)
	return &Result{
		Allocation: allocation,
		Objective:  c.cfg.AllocationWeight * sol.Objective,
		Outcome:    sol.Outcome,
	}, nil
}

func (c *Coordinator) runScheduling(ctx context.Context, in *Input) (*Result, error) {
	if in.ChargeProblem == nil {
		return nil, fmt.Errorf("%w: scheduling mode without scheduling input", solver.ErrData)
	}
	p := in.ChargeProblem
	if c.cfg.SchedulingLimit > 0 {
		p.TimeLimit = c.cfg.SchedulingLimit
	}
	if c.cfg.TargetSOCPercent > 0 {
		p.TargetSOCPercent = c.cfg.TargetSOCPercent
	}

	schedule, err := c.sched.Solve(ctx, p)
	if err != nil {
		return nil, err
	}
	schedule.SiteID = in.SiteID

	return &Result{
		Schedule:  schedule,
		Objective: -c.cfg.SchedulingWeight * schedule.TotalCost,
		Outcome:   schedule.Outcome,
	}, nil
}

// runIntegrated solves allocation first, rebuilds the scheduling checkpoints
// from the selected sequences only, then solves scheduling. Unselected
// routes never force charging.
func (c *Coordinator) runIntegrated(ctx context.Context, in *Input) (*Result, error) {
	if in.AllocationModel == nil || in.ChargeProblem == nil {
		return nil, fmt.Errorf("%w: integrated mode needs both inputs", solver.ErrData)
	}

	deadline := c.cfg.IntegratedLimit
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	allocRes, err := c.runAllocation(ctx, in)
	if err != nil {
		return nil, err
	}

	// Gate checkpoints on the selected sequences.
	m := in.AllocationModel
	routesByVehicle := make(map[int][]*fleet.Route)
	for _, a := range allocRes.Allocation.Allocations {
		for _, cand := range m.Candidates {
			if cand.VehicleID != a.VehicleID {
				continue
			}
			for _, route := range cand.Routes {
				if route.ID == a.RouteID {
					routesByVehicle[a.VehicleID] = append(routesByVehicle[a.VehicleID], route)
				}
			}
		}
	}
	for id, routes := range routesByVehicle {
		routesByVehicle[id] = dedupeRoutes(routes)
	}

	p := in.ChargeProblem
	p.Checkpoints = charge.BuildCheckpoints(p.Vehicles, routesByVehicle, in.SafetyFactor, in.BackToBackThreshold)

	schedRes, err := c.runScheduling(ctx, in)
	if err != nil {
		return nil, err
	}

	outcome := allocRes.Outcome
	if schedRes.Outcome == solver.Timeout || outcome == solver.Timeout {
		outcome = solver.Timeout
	}

	return &Result{
		Allocation: allocRes.Allocation,
		Schedule:   schedRes.Schedule,
		Objective:  allocRes.Objective + schedRes.Objective,
		Outcome:    outcome,
	}, nil
}

func dedupeRoutes(routes []*fleet.Route) []*fleet.Route {
	seen := make(map[string]bool, len(routes))
	out := routes[:0]
	for _, route := range routes {
		if !seen[route.ID] {
			seen[route.ID] = true
			out = append(out, route)
		}
	}
	return out
}
