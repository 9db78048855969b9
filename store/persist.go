package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KKFPS/allocation-v2/charge"
	"github.com/KKFPS/allocation-v2/fleet"
)

// InsertAllocationRun creates the monitor row for a new run and returns its
// id. The row starts in the New status and is finished by FinishAllocationRun.
func (s *Store) InsertAllocationRun(ctx context.Context, siteID int, trigger string, result *fleet.AllocationResult) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO t_allocation_monitor
			(site_id, trigger_type, run_datetime, window_start, window_end, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING allocation_id`,
		siteID, trigger, result.RunTime, result.WindowStart, result.WindowEnd,
		fleet.AllocationStatusNew).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert allocation run: %w", err)
	}
	return id, nil
}

// FinishAllocationRun records the final status and counters of a run.
// errText is stored when non-empty.
func (s *Store) FinishAllocationRun(ctx context.Context, result *fleet.AllocationResult, errText string) error {
	var errColumn sql.NullString
	if errText != "" {
		errColumn = sql.NullString{String: errText, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE t_allocation_monitor
		SET status = $2,
		    total_score = $3,
		    routes_in_window = $4,
		    routes_allocated = $5,
		    error_text = $6,
		    finished_date_time = NOW()
		WHERE allocation_id = $1`,
		result.AllocationID, result.Status, result.TotalScore,
		result.RoutesInWindow, result.RoutesAllocated, errColumn)
	if err != nil {
		return fmt.Errorf("failed to finish allocation run: %w", err)
	}
	return nil
}

// SaveAllocationResult replaces the live allocation of the window and
// appends history snapshots, all in one transaction.
func (s *Store) SaveAllocationResult(ctx context.Context, result *fleet.AllocationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear the live allocations for routes in this window first.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM t_route_allocated
		WHERE route_id IN (
			SELECT route_id FROM t_route_plan
			WHERE site_id = $1
			  AND plan_start_date_time >= $2
			  AND plan_start_date_time < $3
		)`, result.SiteID, result.WindowStart, result.WindowEnd)
	if err != nil {
		return fmt.Errorf("failed to clear previous allocations: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO t_route_allocated
			(allocation_id, route_id, vehicle_id,
			 estimated_arrival, estimated_arrival_soc, cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (route_id)
		DO UPDATE SET
			allocation_id = EXCLUDED.allocation_id,
			vehicle_id = EXCLUDED.vehicle_id,
			estimated_arrival = EXCLUDED.estimated_arrival,
			estimated_arrival_soc = EXCLUDED.estimated_arrival_soc,
			cost = EXCLUDED.cost`)
	if err != nil {
		return fmt.Errorf("failed to prepare allocation insert: %w", err)
	}
	defer insert.Close()

	history, err := tx.PrepareContext(ctx, `
		INSERT INTO t_route_allocated_history
			(allocation_id, route_id, vehicle_id,
			 estimated_arrival, estimated_arrival_soc, cost, created_date_time)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer history.Close()

	for _, a := range result.Allocations {
		args := []any{result.AllocationID, a.RouteID, a.VehicleID,
			a.EstimatedArrival, a.EstimatedArrivalSOC, a.Cost}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert allocation for route %s: %w", a.RouteID, err)
		}
		if _, err := history.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert history for route %s: %w", a.RouteID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit allocation result: %w", err)
	}

	s.logger.Printf("Saved allocation %d: %d routes", result.AllocationID, len(result.Allocations))
	return nil
}

// SaveChargeSchedule replaces the charge plan of the planning window and
// writes the per-slot rows, all in one transaction.
func (s *Store) SaveChargeSchedule(ctx context.Context, schedule *charge.Schedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM t_vehicle_charge
		WHERE site_id = $1
		  AND time_slot >= $2
		  AND time_slot < $3`,
		schedule.SiteID, schedule.PlanningStart, schedule.PlanningEnd)
	if err != nil {
		return fmt.Errorf("failed to clear previous charge plan: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO t_vehicle_charge
			(schedule_id, site_id, vehicle_id, time_slot,
			 charge_power_kw, cumulative_energy_kwh, electricity_price, triad_flag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site_id, vehicle_id, time_slot)
		DO UPDATE SET
			schedule_id = EXCLUDED.schedule_id,
			charge_power_kw = EXCLUDED.charge_power_kw,
			cumulative_energy_kwh = EXCLUDED.cumulative_energy_kwh,
			electricity_price = EXCLUDED.electricity_price,
			triad_flag = EXCLUDED.triad_flag`)
	if err != nil {
		return fmt.Errorf("failed to prepare charge insert: %w", err)
	}
	defer insert.Close()

	slots := 0
	for _, vs := range schedule.Vehicles {
		for _, slot := range vs.Slots {
			if _, err := insert.ExecContext(ctx,
				schedule.ScheduleID, schedule.SiteID, vs.VehicleID, slot.Start,
				slot.PowerKW, slot.CumulativeKWh, slot.Price, slot.Triad); err != nil {
				return fmt.Errorf("failed to insert charge slot for vehicle %d: %w", vs.VehicleID, err)
			}
			slots++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge schedule: %w", err)
	}

	s.logger.Printf("Saved charge schedule %d: %d vehicles, %d slots",
		schedule.ScheduleID, len(schedule.Vehicles), slots)
	return nil
}
