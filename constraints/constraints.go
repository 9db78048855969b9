// Package constraints implements the pluggable constraint engine that scores
// candidate route sequences during allocation.
//
// Hard constraints reject a sequence outright; soft constraints adjust its
// score. The manager evaluates hard constraints first and short-circuits on
// the first violation, so soft scoring only runs on feasible sequences.
package constraints

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/KKFPS/allocation-v2/fleet"
)

// Charger describes the charging bay a vehicle is plugged into.
type Charger struct {
	ID         int
	Type       string // "AC" or "DC"
	MaxPowerKW float64
}

// IsDC reports whether this is a DC fast charger.
func (c Charger) IsDC() bool {
	return c.Type == "DC"
}

// EvalContext carries everything a constraint may inspect for one
// (vehicle, sequence) candidate.
type EvalContext struct {
	Vehicle     *fleet.Vehicle
	Sequence    []*fleet.Route
	AllRoutes   []*fleet.Route
	AllVehicles []*fleet.Vehicle

	// VehicleChargers maps vehicle id to its assigned charger. Vehicles
	// absent from the map are not plugged in.
	VehicleChargers map[int]Charger

	// PreviousVehicles maps route id to the vehicle it was allocated to in
	// the most recent prior run inside the lookback window.
	PreviousVehicles map[string]int

	Now time.Time
}

// Result is the outcome of one constraint evaluation.
type Result struct {
	HardViolation bool
	ScoreDelta    float64
	Tags          []string
}

// Constraint evaluates one rule against a candidate sequence.
type Constraint interface {
	Name() string
	IsHard() bool
	Evaluate(ctx *EvalContext) Result
}

// Evaluation is the aggregate verdict for one candidate sequence.
type Evaluation struct {
	Feasible   bool
	TotalCost  float64
	ViolatedBy string // name of the hard constraint that rejected, if any
	Tags       []string
}

// Manager runs a set of constraints against candidate sequences.
type Manager struct {
	hard   []Constraint
	soft   []Constraint
	logger *log.Logger
}

// NewManager creates an empty manager. A nil logger falls back to stdout.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stdout, "[CONSTRAINTS] ", log.LstdFlags)
	}
	return &Manager{logger: logger}
}

// Register adds a constraint to the evaluation set.
func (m *Manager) Register(c Constraint) {
	if c.IsHard() {
		m.hard = append(m.hard, c)
	} else {
		m.soft = append(m.soft, c)
	}
}

// Names lists the registered constraints, hard first.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.hard)+len(m.soft))
	for _, c := range m.hard {
		names = append(names, c.Name())
	}
	for _, c := range m.soft {
		names = append(names, c.Name())
	}
	return names
}

// EvaluateSequence runs hard constraints first, stopping at the first
// violation, then accumulates soft score deltas.
func (m *Manager) EvaluateSequence(ctx *EvalContext) Evaluation {
	eval := Evaluation{Feasible: true}

	for _, c := range m.hard {
		result := c.Evaluate(ctx)
		eval.Tags = append(eval.Tags, result.Tags...)
		if result.HardViolation {
			eval.Feasible = false
			eval.ViolatedBy = c.Name()
			return eval
		}
	}

	for _, c := range m.soft {
		result := c.Evaluate(ctx)
		eval.TotalCost += result.ScoreDelta
		eval.Tags = append(eval.Tags, result.Tags...)
	}

	return eval
}

// Helpers to read decoded constraint config maps with defaults. Keys whose
// suffix the parameter decoder does not recognize arrive as strings, so the
// numeric helpers parse those too.

func cfgFloat(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func cfgInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func cfgBool(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func cfgString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return def
}
