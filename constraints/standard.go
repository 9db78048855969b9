package constraints

import (
	"log"

	"github.com/KKFPS/allocation-v2/params"
)

// Default enabled state per standard constraint. route_overlap is mandatory
// and ignores any attempt to disable it.
var defaultEnabled = map[string]bool{
	"energy_feasibility":        true,
	"turnaround_time_strict":    true,
	"turnaround_time_preferred": true,
	"shift_hours_strict":        true,
	"minimum_soonness":          true,
	"route_overlap":             true,
	"charger_preference":        false,
	"swap_minimization":         true,
	"energy_optimization":       false,
}

// StandardNames lists the constraints this module ships, hard ones first.
var StandardNames = []string{
	"energy_feasibility",
	"turnaround_time_strict",
	"shift_hours_strict",
	"minimum_soonness",
	"route_overlap",
	"turnaround_time_preferred",
	"charger_preference",
	"swap_minimization",
	"energy_optimization",
}

// NewStandardManager builds a manager with the standard constraint set,
// each configured from the site's decoded parameters.
func NewStandardManager(dec *params.Decoder, p params.Parameters, logger *log.Logger) *Manager {
	m := NewManager(logger)

	for _, name := range StandardNames {
		cfg := dec.ConstraintConfig(p, name)

		enabled := defaultEnabled[name]
		if v, ok := cfg["enabled"].(bool); ok {
			enabled = v
		}
		if name == "route_overlap" {
			enabled = true
		}
		if !enabled {
			continue
		}

		switch name {
		case "energy_feasibility":
			m.Register(NewEnergyFeasibility(cfg))
		case "turnaround_time_strict":
			m.Register(NewTurnaroundStrict(cfg))
		case "turnaround_time_preferred":
			m.Register(NewTurnaroundPreferred(cfg))
		case "shift_hours_strict":
			m.Register(NewShiftHours(cfg))
		case "minimum_soonness":
			m.Register(NewMinimumSoonness(cfg))
		case "route_overlap":
			m.Register(NewRouteOverlap(cfg))
		case "charger_preference":
			m.Register(NewChargerPreference(cfg))
		case "swap_minimization":
			m.Register(NewSwapMinimization(cfg))
		case "energy_optimization":
			m.Register(NewEnergyOptimization(cfg))
		}
	}

	return m
}
