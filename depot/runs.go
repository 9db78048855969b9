package depot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/KKFPS/allocation-v2/allocator"
	"github.com/KKFPS/allocation-v2/charge"
	"github.com/KKFPS/allocation-v2/constraints"
	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/forecast"
	"github.com/KKFPS/allocation-v2/params"
	"github.com/KKFPS/allocation-v2/sequence"
	"github.com/KKFPS/allocation-v2/solver"
	"github.com/KKFPS/allocation-v2/unified"
	"github.com/KKFPS/allocation-v2/window"
)

// meterFloorHorizon is how far ahead the live meter average floors the load
// forecast.
const meterFloorHorizon = 2 * time.Hour

// allocationInputs bundles everything one allocation run needs.
type allocationInputs struct {
	params  params.Parameters
	decoder *params.Decoder
	window  *window.Window
	model   *allocator.Model
}

// buildAllocationInputs loads state from storage and assembles the allocation
// model: window, constraint manager, enumerated candidates.
func (c *Controller) buildAllocationInputs(ctx context.Context, runTime time.Time) (*allocationInputs, error) {
	cfg := c.Config()

	p, err := c.store.LoadSiteParameters(ctx, cfg.SiteID)
	if err != nil {
		return nil, err
	}
	dec := params.NewDecoder(c.logger)
	manager := constraints.NewStandardManager(dec, p, c.logger)

	vehicles, err := c.store.LoadVehicles(ctx, cfg.SiteID)
	if err != nil {
		return nil, err
	}
	vehicles = holdReserve(vehicles, cfg.ReserveVehicles, c.logger)

	windowHours := dec.Float(p, "allocation_window_hours", cfg.AllocationWindowHours)
	windowEnd := runTime.Add(time.Duration(windowHours * float64(time.Hour)))

	routes, err := c.store.LoadRoutesInWindow(ctx, cfg.SiteID, runTime, windowEnd)
	if err != nil {
		return nil, err
	}
	committed, err := c.store.LoadCommittedAssignments(ctx, cfg.SiteID, runTime, windowEnd)
	if err != nil {
		return nil, err
	}
	horizon, err := c.store.LoadDataHorizon(ctx, cfg.SiteID, runTime)
	if err != nil {
		return nil, err
	}
	effective, _ := horizon.Effective()

	builder := window.NewBuilder(window.Config{Hours: windowHours, MinStops: cfg.MinStops}, c.logger)
	w, err := builder.Build(cfg.SiteID, runTime, routes, vehicles, committed, effective)
	if err != nil {
		return nil, err
	}

	lookback := time.Duration(dec.Float(p, "swap_lookback_hours", cfg.SwapLookbackHours) * float64(time.Hour))
	previous, err := c.store.LoadPreviousVehicles(ctx, cfg.SiteID, runTime.Add(-lookback))
	if err != nil {
		return nil, err
	}
	chargers, err := c.store.LoadChargerMap(ctx, cfg.SiteID)
	if err != nil {
		return nil, err
	}

	base := &constraints.EvalContext{
		AllRoutes:        w.Routes,
		AllVehicles:      w.Vehicles,
		VehicleChargers:  chargers,
		PreviousVehicles: previous,
		Now:              runTime,
	}
	enum := sequence.NewEnumerator(manager, cfg.MaxRoutesPerVehicle, c.logger)
	candidates, _ := enum.Enumerate(base, w.Vehicles, w.Routes)

	routeIDs := make([]string, len(w.Routes))
	for i, route := range w.Routes {
		routeIDs[i] = route.ID
	}

	model := allocator.NewModel(candidates, routeIDs)
	model.Routes = w.Routes
	model.TimeLimit = cfg.AllocationTimeLimit

	return &allocationInputs{params: p, decoder: dec, window: w, model: model}, nil
}

// holdReserve removes the configured number of vehicles from the usable set,
// holding back the highest ids. The fleet never shrinks below one vehicle.
func holdReserve(vehicles []*fleet.Vehicle, reserve int, logger *log.Logger) []*fleet.Vehicle {
	if reserve <= 0 || len(vehicles) == 0 {
		return vehicles
	}
	keep := len(vehicles) - reserve
	if keep < 1 {
		keep = 1
	}
	// LoadVehicles orders by id, so the tail holds the highest ids.
	held := vehicles[keep:]
	if len(held) > 0 {
		logger.Printf("Holding %d vehicles in reserve (ids from %d)", len(held), held[0].ID)
	}
	return vehicles[:keep]
}

// RunAllocation executes one full allocation run: load, enumerate, solve,
// quality-gate, persist. The returned result carries the final status even
// when the run is rejected.
func (c *Controller) RunAllocation(ctx context.Context, runTime time.Time, trigger string) (*fleet.AllocationResult, error) {
	cfg := c.Config()
	if !ValidTrigger(trigger) {
		return nil, fmt.Errorf("%w: unknown trigger type %q", solver.ErrConfig, trigger)
	}
	c.logger.Printf("Allocation run for site %d (trigger %s)", cfg.SiteID, trigger)

	in, err := c.buildAllocationInputs(ctx, runTime)
	if err != nil {
		return nil, err
	}

	shell := fleet.NewAllocationResult(cfg.SiteID, runTime, in.window.Start, in.window.End)
	var allocationID int64
	if !cfg.DryRun {
		allocationID, err = c.store.InsertAllocationRun(ctx, cfg.SiteID, trigger, shell)
		if err != nil {
			return nil, err
		}
	}

	alloc := allocator.New(nil, c.logger)
	sol, err := alloc.Solve(ctx, in.model)
	if err != nil {
		if !cfg.DryRun {
			shell.AllocationID = allocationID
			shell.Status = fleet.AllocationStatusFailed
			if finishErr := c.store.FinishAllocationRun(ctx, shell, err.Error()); finishErr != nil {
				c.logger.Printf("ERROR: failed to finish allocation run: %v", finishErr)
			}
		}
		return nil, err
	}

	result := allocator.BuildResult(in.model, sol, cfg.SiteID, runTime, in.window.Start, in.window.End)
	result.AllocationID = allocationID

	minScore := in.decoder.Float(in.params, "min_quality_score", cfg.MinQualityScore)
	err = c.finalizeAllocation(ctx, result, minScore, cfg.DryRun)

	c.setLastAllocation(result)
	c.webServer.BroadcastRun("allocation", map[string]any{
		"allocation_id":    result.AllocationID,
		"status":           result.Status,
		"total_score":      result.TotalScore,
		"routes_in_window": result.RoutesInWindow,
		"routes_allocated": result.RoutesAllocated,
	})
	return result, err
}

// finalizeAllocation applies the quality gate and persists an accepted
// result. A rejected result returns an error wrapping solver.ErrInfeasible;
// a persistence failure leaves the run in the persist-error status.
func (c *Controller) finalizeAllocation(ctx context.Context, result *fleet.AllocationResult, minScore float64, dryRun bool) error {
	var runErr error
	var errText string

	if result.Acceptable(minScore) {
		result.Status = fleet.AllocationStatusAccepted
		if !dryRun {
			if err := c.store.SaveAllocationResult(ctx, result); err != nil {
				result.Status = fleet.AllocationStatusPersistError
				errText = err.Error()
				runErr = err
			}
		}
	} else {
		result.Status = fleet.AllocationStatusFailed
		if result.RoutesInWindow > 0 && result.RoutesAllocated == 0 {
			errText = "no sequence covers any route in the window"
		} else {
			errText = fmt.Sprintf("total score %.2f below quality gate %.2f", result.TotalScore, minScore)
		}
		runErr = fmt.Errorf("%w: %s", solver.ErrInfeasible, errText)
	}

	if !dryRun {
		if err := c.store.FinishAllocationRun(ctx, result, errText); err != nil {
			c.logger.Printf("ERROR: failed to finish allocation run: %v", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	c.logger.Printf("Allocation finished: %s", result)
	return runErr
}

// buildChargeProblem loads state from storage and assembles the scheduling
// problem over the planning window.
func (c *Controller) buildChargeProblem(ctx context.Context, runTime time.Time) (*charge.Problem, error) {
	cfg := c.Config()

	p, err := c.store.LoadSiteParameters(ctx, cfg.SiteID)
	if err != nil {
		return nil, err
	}
	dec := params.NewDecoder(c.logger)

	horizon, err := c.store.LoadDataHorizon(ctx, cfg.SiteID, runTime)
	if err != nil {
		return nil, err
	}

	planningHours := dec.Float(p, "planning_window_hours", cfg.PlanningWindowHours)
	start := charge.FloorToSlot(runTime)
	end := start.Add(time.Duration(planningHours * float64(time.Hour)))
	if effective, ok := horizon.Effective(); ok && effective.Before(end) {
		if !effective.After(start) {
			return nil, fmt.Errorf("%w: no price or forecast data beyond %s",
				solver.ErrData, effective.Format(time.RFC3339))
		}
		c.logger.Printf("Planning window capped by data horizon: %s -> %s",
			end.Format("15:04"), effective.Format("15:04"))
		end = effective
	}

	prices, err := c.store.LoadPricePoints(ctx, cfg.SiteID, start, end)
	if err != nil {
		return nil, err
	}
	slots := charge.BuildSlots(start, end, prices)

	vehicles, err := c.store.LoadVehicles(ctx, cfg.SiteID)
	if err != nil {
		return nil, err
	}
	chargers, err := c.store.LoadChargerMap(ctx, cfg.SiteID)
	if err != nil {
		return nil, err
	}
	states := chargeStates(vehicles, chargers)

	committed, err := c.store.LoadCommittedAssignments(ctx, cfg.SiteID, runTime, end)
	if err != nil {
		return nil, err
	}
	routesByVehicle := committedRoutes(cfg.SiteID, committed)

	if cfg.PVPeakKW > 0 {
		forecast.ApplyPVOffset(slots, forecast.PVOffset{
			Latitude:  cfg.Latitude,
			Longitude: cfg.Longitude,
			PeakKW:    cfg.PVPeakKW,
		})
	}
	if avg, ok := c.meter.AverageKW(5 * time.Minute); ok {
		forecast.ApplyMeterFloor(slots, avg, runTime.Add(meterFloorHorizon))
	}

	safetyFactor := dec.Float(p, "route_energy_safety_factor", cfg.RouteEnergySafetyFactor)

	problem := charge.NewProblem(slots, states)
	problem.Availability = charge.BuildAvailability(slots, states, routesByVehicle, cfg.MinDepartureBuffer)
	problem.Checkpoints = charge.BuildCheckpoints(states, routesByVehicle, safetyFactor, cfg.BackToBackThreshold)
	problem.SiteCapacityKW = charge.SiteCapacityKW(
		dec.Float(p, "agreed_site_capacity_kva", cfg.AgreedSiteCapacityKVA),
		cfg.PowerFactor, cfg.SiteUsageFactor)
	problem.TargetSOCPercent = dec.Float(p, "target_soc_percent", cfg.TargetSOCPercent)
	problem.TriadPenaltyFactor = cfg.TriadPenaltyFactor
	problem.SyntheticTimePriceFactor = cfg.SyntheticTimePriceFactor
	problem.ShortfallPenalty = cfg.ShortfallPenalty
	problem.TimeLimit = cfg.SchedulingTimeLimit
	return problem, nil
}

// chargeStates converts fleet vehicles plus the charger map into the
// scheduling snapshot.
func chargeStates(vehicles []*fleet.Vehicle, chargers map[int]constraints.Charger) []charge.VehicleChargeState {
	states := make([]charge.VehicleChargeState, 0, len(vehicles))
	for _, v := range vehicles {
		state := charge.VehicleChargeState{
			VehicleID:       v.ID,
			SOCKWh:          v.AvailableEnergy(),
			BatteryCapacity: v.BatteryCapacity,
			ACRateKW:        v.ChargePowerACKW,
			DCRateKW:        v.ChargePowerDCKW,
			Efficiency:      v.Efficiency(),
			Status:          string(v.Status),
			CurrentRoute:    v.CurrentRouteID,
			ReturnETA:       v.ReturnETA,
			ReturnSOC:       v.ReturnSOC,
		}
		if v.BatteryCapacity > 0 {
			state.SOCPercent = state.SOCKWh / v.BatteryCapacity * 100.0
		}
		if charger, ok := chargers[v.ID]; ok {
			state.Connected = true
			state.ChargerID = charger.ID
			state.ChargerType = charger.Type
		}
		states = append(states, state)
	}
	return states
}

// committedRoutes rebuilds the per-vehicle route plan from persisted
// allocations. The committed energy already folds in the vehicle efficiency.
func committedRoutes(siteID int, committed []window.CommittedAssignment) map[int][]*fleet.Route {
	routes := make(map[int][]*fleet.Route)
	for _, ca := range committed {
		routes[ca.VehicleID] = append(routes[ca.VehicleID], &fleet.Route{
			ID:        ca.RouteID,
			SiteID:    siteID,
			Status:    fleet.RouteStatusAllocated,
			PlanStart: ca.Start,
			PlanEnd:   ca.End,
			VehicleID: ca.VehicleID,
			EnergyKWh: ca.EnergyKWh,
		})
	}
	return routes
}

// RunScheduling executes one charge scheduling run over the committed
// allocations and persists the plan.
func (c *Controller) RunScheduling(ctx context.Context, runTime time.Time) (*charge.Schedule, error) {
	cfg := c.Config()
	c.logger.Printf("Scheduling run for site %d", cfg.SiteID)

	problem, err := c.buildChargeProblem(ctx, runTime)
	if err != nil {
		return nil, err
	}

	sched := charge.NewGreedy(c.logger)
	schedule, err := sched.Solve(ctx, problem)
	if err != nil {
		return nil, err
	}
	schedule.SiteID = cfg.SiteID
	schedule.ScheduleID = runTime.Unix()

	if !cfg.DryRun {
		if err := c.store.SaveChargeSchedule(ctx, schedule); err != nil {
			return schedule, err
		}
	}

	c.setLastSchedule(schedule)
	c.webServer.BroadcastRun("scheduling", map[string]any{
		"schedule_id":        schedule.ScheduleID,
		"total_cost":         schedule.TotalCost,
		"total_energy_kwh":   schedule.TotalEnergyKWh,
		"vehicles_scheduled": schedule.VehiclesScheduled,
		"outcome":            schedule.Outcome.String(),
	})
	return schedule, nil
}

// RunUnified executes a coupled run in the given mode (empty means resolve
// from the available inputs). Allocation results go through the same quality
// gate and persistence as standalone allocation runs.
func (c *Controller) RunUnified(ctx context.Context, runTime time.Time, mode unified.Mode) (*unified.Result, error) {
	cfg := c.Config()
	c.logger.Printf("Unified run for site %d", cfg.SiteID)

	in := &unified.Input{
		SiteID:              cfg.SiteID,
		RunTime:             runTime,
		SafetyFactor:        cfg.RouteEnergySafetyFactor,
		BackToBackThreshold: cfg.BackToBackThreshold,
	}

	var allocIn *allocationInputs
	if mode != unified.ModeSchedulingOnly {
		var err error
		allocIn, err = c.buildAllocationInputs(ctx, runTime)
		if err != nil {
			return nil, err
		}
		in.AllocationModel = allocIn.model
		in.WindowStart = allocIn.window.Start
		in.WindowEnd = allocIn.window.End
	}
	if mode != unified.ModeAllocationOnly {
		problem, err := c.buildChargeProblem(ctx, runTime)
		if err != nil {
			return nil, err
		}
		in.ChargeProblem = problem
	}

	minScore := cfg.MinQualityScore
	if allocIn != nil {
		minScore = allocIn.decoder.Float(allocIn.params, "min_quality_score", cfg.MinQualityScore)
	}

	ucfg := unified.Config{
		Mode:             mode,
		AllocationWeight: cfg.AllocationWeight,
		SchedulingWeight: cfg.SchedulingWeight,
		AllocationLimit:  cfg.AllocationTimeLimit,
		SchedulingLimit:  cfg.SchedulingTimeLimit,
		IntegratedLimit:  cfg.IntegratedTimeLimit,
		TargetSOCPercent: cfg.TargetSOCPercent,
		MinQualityScore:  minScore,
	}
	coord := unified.New(ucfg, allocator.New(nil, c.logger), charge.NewGreedy(c.logger), c.logger)

	var allocationID int64
	if in.AllocationModel != nil && !cfg.DryRun {
		shell := fleet.NewAllocationResult(cfg.SiteID, runTime, in.WindowStart, in.WindowEnd)
		var err error
		allocationID, err = c.store.InsertAllocationRun(ctx, cfg.SiteID, TriggerInitial, shell)
		if err != nil {
			return nil, err
		}
	}

	result, err := coord.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	var runErr error
	if result.Allocation != nil {
		result.Allocation.AllocationID = allocationID
		runErr = c.finalizeAllocation(ctx, result.Allocation, minScore, cfg.DryRun)
		c.setLastAllocation(result.Allocation)
	}
	if result.Schedule != nil {
		result.Schedule.ScheduleID = runTime.Unix()
		persist := !cfg.DryRun
		if result.Allocation != nil && result.Allocation.Status != fleet.AllocationStatusAccepted {
			persist = false // don't plan charging around a rejected allocation
		}
		if persist {
			if err := c.store.SaveChargeSchedule(ctx, result.Schedule); err != nil && runErr == nil {
				runErr = err
			}
		}
		c.setLastSchedule(result.Schedule)
	}

	c.webServer.BroadcastRun("unified", map[string]any{
		"mode":      string(result.Mode),
		"objective": result.Objective,
		"outcome":   result.Outcome.String(),
	})
	return result, runErr
}
