package charge

import (
	"time"

	"github.com/KKFPS/allocation-v2/solver"
)

// VehicleChargeState is the charging-relevant snapshot of one vehicle at the
// start of the planning window.
type VehicleChargeState struct {
	VehicleID       int
	SOCPercent      float64
	SOCKWh          float64
	BatteryCapacity float64

	Connected   bool
	ChargerID   int
	ChargerType string // "AC" or "DC"

	ACRateKW   float64
	DCRateKW   float64
	Efficiency float64 // kWh/mile

	Status       string
	CurrentRoute string
	ReturnETA    time.Time
	ReturnSOC    float64
}

// MissingEnergy is the energy to a full battery.
func (s *VehicleChargeState) MissingEnergy() float64 {
	return s.BatteryCapacity - s.SOCKWh
}

// Chargeable reports whether the vehicle can take charge at all.
func (s *VehicleChargeState) Chargeable() bool {
	return s.Status != "VOR" && s.Connected
}

// Checkpoint is one route departure the schedule must charge for: by the
// slot before departure the vehicle needs the cumulative required energy
// beyond its starting SOC.
type Checkpoint struct {
	RouteID       string
	VehicleID     int
	Departure     time.Time
	Return        time.Time
	Mileage       float64
	Efficiency    float64
	RequiredKWh   float64 // this route alone, safety factor applied
	CumulativeKWh float64 // running total across the vehicle's sequence
	SequenceIndex int
	BackToBack    bool
	GapToNext     time.Duration // zero for the last route
}

// VehicleSchedule is the planned charging of one vehicle.
type VehicleSchedule struct {
	VehicleID int

	InitialSOCKWh    float64
	TargetSOCKWh     float64
	NeededKWh        float64
	ScheduledKWh     float64
	ShortfallKWh     float64
	MeetsCheckpoints bool

	Checkpoints []Checkpoint
	Slots       []ChargeSlot

	ChargerID   int
	ChargerType string
}

// ChargeSlot is the planned power for one vehicle in one settlement period.
type ChargeSlot struct {
	Start         time.Time
	PowerKW       float64
	CumulativeKWh float64
	Price         float64
	Triad         bool
}

// Schedule is the complete result of one scheduling run.
type Schedule struct {
	ScheduleID int64
	SiteID     int

	PlanningStart time.Time
	PlanningEnd   time.Time
	WindowHours   float64

	Vehicles []VehicleSchedule

	TotalCost      float64
	TotalEnergyKWh float64
	SolveTime      time.Duration
	Outcome        solver.Outcome

	VehiclesScheduled int
	RoutesConsidered  int
	Checkpoints       int

	ValidationErrors   []string
	ValidationWarnings []string
}

// Valid reports whether the schedule passed validation.
func (s *Schedule) Valid() bool {
	return len(s.ValidationErrors) == 0
}
