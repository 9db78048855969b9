// Package window assembles the allocation window: which routes are eligible,
// which vehicles are usable, and from when and with how much energy each
// vehicle is available.
package window

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/solver"
)

// Window sizing defaults, in hours.
const (
	DefaultHours = 18.0
	MinHours     = 4.0
	MaxHours     = 24.0
)

// DefaultMinStops is the minimum order count for a route to be worth running.
const DefaultMinStops = 1

// CommittedAssignment is an allocation already persisted for a vehicle whose
// route falls inside or overlaps the new window. Its energy and end time are
// deducted from the vehicle before new work is considered.
type CommittedAssignment struct {
	VehicleID int
	RouteID   string
	Start     time.Time
	End       time.Time
	EnergyKWh float64
}

// Window is the assembled allocation input.
type Window struct {
	Start    time.Time
	End      time.Time
	Routes   []*fleet.Route
	Dropped  []*fleet.Route // eligible by time but infeasible (too few stops)
	Vehicles []*fleet.Vehicle
}

// Config tunes window assembly.
type Config struct {
	Hours    float64
	MinStops int
}

// Builder assembles allocation windows.
type Builder struct {
	cfg    Config
	logger *log.Logger
}

// NewBuilder creates a builder. Hours are clamped to [MinHours, MaxHours];
// a nil logger falls back to stdout.
func NewBuilder(cfg Config, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(os.Stdout, "[WINDOW] ", log.LstdFlags)
	}
	if cfg.Hours <= 0 {
		cfg.Hours = DefaultHours
	}
	if cfg.Hours < MinHours {
		cfg.Hours = MinHours
	}
	if cfg.Hours > MaxHours {
		cfg.Hours = MaxHours
	}
	if cfg.MinStops <= 0 {
		cfg.MinStops = DefaultMinStops
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Build assembles the window [start, start+hours), optionally capped by the
// data horizon (zero horizon means no cap). Routes outside the window or at
// the wrong site are excluded; routes below the stop threshold are dropped
// and reported. Vehicle availability reflects telematics state and the
// committed assignments cascade.
func (b *Builder) Build(siteID int, start time.Time, routes []*fleet.Route, vehicles []*fleet.Vehicle, committed []CommittedAssignment, horizon time.Time) (*Window, error) {
	end := start.Add(time.Duration(b.cfg.Hours * float64(time.Hour)))

	if !horizon.IsZero() && horizon.Before(end) {
		capped := horizon
		minEnd := start.Add(time.Duration(MinHours * float64(time.Hour)))
		if capped.Before(minEnd) {
			return nil, fmt.Errorf("%w: data horizon %s leaves less than %.0fh of window",
				solver.ErrData, horizon.Format(time.RFC3339), MinHours)
		}
		b.logger.Printf("Window end capped by data horizon: %s -> %s",
			end.Format("15:04"), capped.Format("15:04"))
		end = capped
	}

	w := &Window{Start: start, End: end}

	for _, route := range routes {
		if route.SiteID != siteID || route.Status != fleet.RouteStatusNew {
			continue
		}
		if route.PlanStart.Before(start) || !route.PlanStart.Before(end) {
			continue
		}
		if route.Orders < b.cfg.MinStops {
			b.logger.Printf("Route %s dropped: %d orders below minimum %d",
				route.ID, route.Orders, b.cfg.MinStops)
			w.Dropped = append(w.Dropped, route)
			continue
		}
		w.Routes = append(w.Routes, route)
	}
	fleet.SortRoutesByStart(w.Routes)

	w.Vehicles = b.prepareVehicles(siteID, start, vehicles, committed)

	b.logger.Printf("Window [%s, %s): %d routes (%d dropped), %d vehicles",
		start.Format("2006-01-02 15:04"), end.Format("15:04"),
		len(w.Routes), len(w.Dropped), len(w.Vehicles))
	return w, nil
}

// prepareVehicles filters to usable vehicles, sets the available-from time
// from telematics, and applies the committed-assignment cascade: each
// committed route pushes the vehicle's availability past its end and burns
// its energy.
func (b *Builder) prepareVehicles(siteID int, start time.Time, vehicles []*fleet.Vehicle, committed []CommittedAssignment) []*fleet.Vehicle {
	byVehicle := make(map[int][]CommittedAssignment)
	for _, ca := range committed {
		byVehicle[ca.VehicleID] = append(byVehicle[ca.VehicleID], ca)
	}

	var usable []*fleet.Vehicle
	for _, v := range vehicles {
		if v.SiteID != siteID || !v.Available() {
			continue
		}

		prepared := *v
		prepared.AvailableFrom = start
		if prepared.Status == fleet.StatusOnRoute && !prepared.ReturnETA.IsZero() && prepared.ReturnETA.After(start) {
			prepared.AvailableFrom = prepared.ReturnETA
		}

		// Committed allocations cascade: availability moves past each
		// committed route end, and its energy comes off the estimate.
		energy := prepared.AvailableEnergy()
		for _, ca := range byVehicle[v.ID] {
			if ca.End.After(prepared.AvailableFrom) {
				prepared.AvailableFrom = ca.End
			}
			energy -= ca.EnergyKWh
		}
		if energy < 0 {
			energy = 0
		}
		if prepared.BatteryCapacity > 0 {
			prepared.EstimatedSOC = energy / prepared.BatteryCapacity * 100.0
		}

		usable = append(usable, &prepared)
	}
	return usable
}
