package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/KKFPS/allocation-v2/charge"
	"github.com/KKFPS/allocation-v2/constraints"
	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/forecast"
	"github.com/KKFPS/allocation-v2/params"
	"github.com/KKFPS/allocation-v2/window"
)

// LoadSiteParameters returns the raw MAF parameter key/value pairs for a site.
func (s *Store) LoadSiteParameters(ctx context.Context, siteID int) (params.Parameters, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT param_key, param_value
		FROM t_maf_parameter
		WHERE site_id = $1`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query site parameters: %w", err)
	}
	defer rows.Close()

	p := make(params.Parameters)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan parameter row: %w", err)
		}
		p[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parameter rows: %w", err)
	}

	s.logger.Printf("Loaded %d parameters for site %d", len(p), siteID)
	return p, nil
}

// LoadVehicles returns the active vehicles of a site with their latest
// telematics state merged in. Vehicles with no state row come back Idle with
// unknown SOC.
func (s *Store) LoadVehicles(ctx context.Context, siteID int) ([]*fleet.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.vehicle_id, v.site_id, v.active, v.vor,
		       v.charge_power_ac, v.charge_power_dc,
		       v.battery_capacity, v.efficiency_kwh_mile, t.telematic_label,
		       st.status, st.current_route_id, st.return_eta,
		       st.return_soc, st.estimated_soc
		FROM t_vehicle v
		LEFT JOIN t_vehicle_telematics t ON t.vehicle_id = v.vehicle_id
		LEFT JOIN LATERAL (
			SELECT status, current_route_id, return_eta, return_soc, estimated_soc
			FROM t_vehicle_state
			WHERE vehicle_id = v.vehicle_id
			ORDER BY created_date_time DESC
			LIMIT 1
		) st ON TRUE
		WHERE v.site_id = $1 AND v.active = TRUE
		ORDER BY v.vehicle_id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*fleet.Vehicle
	for rows.Next() {
		v := fleet.NewVehicle(0, siteID)
		var label, status, currentRoute sql.NullString
		var returnETA sql.NullTime
		var returnSOC, estimatedSOC sql.NullFloat64

		if err := rows.Scan(&v.ID, &v.SiteID, &v.Active, &v.VOR,
			&v.ChargePowerACKW, &v.ChargePowerDCKW,
			&v.BatteryCapacity, &v.EfficiencyKWhMile, &label,
			&status, &currentRoute, &returnETA, &returnSOC, &estimatedSOC); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}

		v.TelematicLabel = label.String
		if status.Valid {
			v.Status = fleet.VehicleStatus(status.String)
		}
		v.CurrentRouteID = currentRoute.String
		if returnETA.Valid {
			v.ReturnETA = returnETA.Time
		}
		if returnSOC.Valid {
			v.ReturnSOC = returnSOC.Float64
		}
		if estimatedSOC.Valid {
			v.EstimatedSOC = estimatedSOC.Float64
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicle rows: %w", err)
	}

	s.logger.Printf("Loaded %d vehicles for site %d", len(vehicles), siteID)
	return vehicles, nil
}

// LoadRoutesInWindow returns the new routes of a site departing inside
// [start, end). Null or non-positive pre-assigned vehicle ids canonicalize
// to 0, meaning no pre-assignment.
func (s *Store) LoadRoutesInWindow(ctx context.Context, siteID int, start, end time.Time) ([]*fleet.Route, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, site_id, route_alias, route_status,
		       plan_start_date_time, plan_end_date_time,
		       plan_mileage, n_orders, vehicle_id, energy_kwh
		FROM t_route_plan
		WHERE site_id = $1
		  AND route_status = 'N'
		  AND plan_start_date_time >= $2
		  AND plan_start_date_time < $3
		ORDER BY plan_start_date_time, route_id`, siteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []*fleet.Route
	for rows.Next() {
		r := &fleet.Route{}
		var vehicleID sql.NullInt64
		var energy sql.NullFloat64

		if err := rows.Scan(&r.ID, &r.SiteID, &r.Alias, &r.Status,
			&r.PlanStart, &r.PlanEnd, &r.Mileage, &r.Orders,
			&vehicleID, &energy); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}

		if vehicleID.Valid && vehicleID.Int64 > 0 {
			r.VehicleID = int(vehicleID.Int64)
		}
		if energy.Valid {
			r.EnergyKWh = energy.Float64
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route rows: %w", err)
	}

	s.logger.Printf("Loaded %d routes in window for site %d", len(routes), siteID)
	return routes, nil
}

// LoadCommittedAssignments returns persisted allocations whose routes
// overlap [start, end), for the availability cascade.
func (s *Store) LoadCommittedAssignments(ctx context.Context, siteID int, start, end time.Time) ([]window.CommittedAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.vehicle_id, a.route_id,
		       r.plan_start_date_time, r.plan_end_date_time,
		       r.plan_mileage * COALESCE(NULLIF(v.efficiency_kwh_mile, 0), $4)
		FROM t_route_allocated a
		JOIN t_route_plan r ON r.route_id = a.route_id
		JOIN t_vehicle v ON v.vehicle_id = a.vehicle_id
		WHERE r.site_id = $1
		  AND r.plan_end_date_time > $2
		  AND r.plan_start_date_time < $3
		ORDER BY r.plan_start_date_time`, siteID, start, end, fleet.DefaultFleetEfficiency)
	if err != nil {
		return nil, fmt.Errorf("failed to query committed assignments: %w", err)
	}
	defer rows.Close()

	var committed []window.CommittedAssignment
	for rows.Next() {
		var ca window.CommittedAssignment
		if err := rows.Scan(&ca.VehicleID, &ca.RouteID, &ca.Start, &ca.End, &ca.EnergyKWh); err != nil {
			return nil, fmt.Errorf("failed to scan committed assignment row: %w", err)
		}
		committed = append(committed, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating committed assignment rows: %w", err)
	}
	return committed, nil
}

// LoadPreviousVehicles returns the route-to-vehicle map of the most recent
// allocations inside the lookback window, for swap minimization. When a
// route appears more than once the latest allocation wins.
func (s *Store) LoadPreviousVehicles(ctx context.Context, siteID int, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (h.route_id) h.route_id, h.vehicle_id
		FROM t_route_allocated_history h
		JOIN t_route_plan r ON r.route_id = h.route_id
		WHERE r.site_id = $1 AND h.created_date_time >= $2
		ORDER BY h.route_id, h.created_date_time DESC`, siteID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous allocations: %w", err)
	}
	defer rows.Close()

	previous := make(map[string]int)
	for rows.Next() {
		var routeID string
		var vehicleID int
		if err := rows.Scan(&routeID, &vehicleID); err != nil {
			return nil, fmt.Errorf("failed to scan previous allocation row: %w", err)
		}
		previous[routeID] = vehicleID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating previous allocation rows: %w", err)
	}
	return previous, nil
}

// LoadChargerMap returns each vehicle's currently connected charger.
func (s *Store) LoadChargerMap(ctx context.Context, siteID int) (map[int]constraints.Charger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vehicle_id, charger_id, charger_type, max_power_kw
		FROM t_vehicle_charger
		WHERE site_id = $1`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query charger map: %w", err)
	}
	defer rows.Close()

	chargers := make(map[int]constraints.Charger)
	for rows.Next() {
		var vehicleID int
		var c constraints.Charger
		var chargerType sql.NullString
		var maxPower sql.NullFloat64
		if err := rows.Scan(&vehicleID, &c.ID, &chargerType, &maxPower); err != nil {
			return nil, fmt.Errorf("failed to scan charger row: %w", err)
		}
		c.Type = chargerType.String
		c.MaxPowerKW = maxPower.Float64
		chargers[vehicleID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating charger rows: %w", err)
	}
	return chargers, nil
}

// LoadPricePoints returns the half-hourly price, triad flag and site load
// forecast over [start, end).
func (s *Store) LoadPricePoints(ctx context.Context, siteID int, start, end time.Time) ([]charge.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.settlement_time, p.energy_price, p.triad_flag,
		       COALESCE(f.load_forecast_kw, 0)
		FROM t_energy_price p
		LEFT JOIN t_load_forecast f
		       ON f.site_id = $1 AND f.forecast_time = p.settlement_time
		WHERE p.settlement_time >= $2 AND p.settlement_time < $3
		ORDER BY p.settlement_time`, siteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query price points: %w", err)
	}
	defer rows.Close()

	var points []charge.PricePoint
	for rows.Next() {
		var p charge.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.EnergyPrice, &p.TriadFlag, &p.LoadForecastKW); err != nil {
			return nil, fmt.Errorf("failed to scan price point row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price point rows: %w", err)
	}

	s.logger.Printf("Loaded %d price points for site %d", len(points), siteID)
	return points, nil
}

// LoadDataHorizon reports how far ahead the forecast and price tables reach.
func (s *Store) LoadDataHorizon(ctx context.Context, siteID int, now time.Time) (forecast.DataHorizon, error) {
	horizon := forecast.DataHorizon{Now: now}

	var maxForecast, maxPrice sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT MAX(forecast_time) FROM t_load_forecast WHERE site_id = $1),
		       (SELECT MAX(settlement_time) FROM t_energy_price)`, siteID).
		Scan(&maxForecast, &maxPrice)
	if err != nil {
		return horizon, fmt.Errorf("failed to query data horizon: %w", err)
	}

	if maxForecast.Valid {
		horizon.MaxForecast = maxForecast.Time
	}
	if maxPrice.Valid {
		horizon.MaxPrice = maxPrice.Time
	}
	return horizon, nil
}
