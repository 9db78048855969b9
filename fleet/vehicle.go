// Package fleet holds the domain model shared by the allocation and charge
// scheduling optimizers: vehicles, routes, sequences and result records.
package fleet

import (
	"fmt"
	"time"
)

// VehicleStatus is the operational state reported by telematics.
type VehicleStatus string

const (
	StatusIdle     VehicleStatus = "Idle"
	StatusOnRoute  VehicleStatus = "On-Route"
	StatusCharging VehicleStatus = "Charging"
	StatusVOR      VehicleStatus = "VOR" // vehicle off road
)

// DefaultFleetEfficiency is the kWh/mile fallback when a vehicle has no
// measured efficiency.
const DefaultFleetEfficiency = 0.35

// UnknownSOC marks SOC fields with no telematics reading.
const UnknownSOC = -1.0

// Vehicle is one electric vehicle at a depot site, combining static
// capabilities with the latest telematics state.
type Vehicle struct {
	ID                int
	SiteID            int
	Active            bool
	VOR               bool
	ChargePowerACKW   float64
	ChargePowerDCKW   float64
	BatteryCapacity   float64 // kWh
	EfficiencyKWhMile float64
	TelematicLabel    string

	// Runtime state. SOC fields use UnknownSOC when no reading exists.
	Status         VehicleStatus
	CurrentRouteID string
	ReturnETA      time.Time // zero when not on route
	ReturnSOC      float64   // percent
	EstimatedSOC   float64   // percent
	AvailableFrom  time.Time
}

// NewVehicle creates a vehicle with unknown SOC state.
func NewVehicle(id, siteID int) *Vehicle {
	return &Vehicle{
		ID:           id,
		SiteID:       siteID,
		Active:       true,
		Status:       StatusIdle,
		ReturnSOC:    UnknownSOC,
		EstimatedSOC: UnknownSOC,
	}
}

// AvailableEnergy returns the energy the vehicle can spend, in kWh. The best
// available SOC estimate wins; with no reading at all the full battery is
// assumed.
func (v *Vehicle) AvailableEnergy() float64 {
	if v.EstimatedSOC >= 0 {
		return v.EstimatedSOC / 100.0 * v.BatteryCapacity
	}
	if v.ReturnSOC >= 0 {
		return v.ReturnSOC / 100.0 * v.BatteryCapacity
	}
	return v.BatteryCapacity
}

// Efficiency returns the vehicle's kWh/mile, falling back to the fleet
// average when unset.
func (v *Vehicle) Efficiency() float64 {
	if v.EfficiencyKWhMile > 0 {
		return v.EfficiencyKWhMile
	}
	return DefaultFleetEfficiency
}

// EnergyRequired returns the energy in kWh needed to drive the given mileage.
func (v *Vehicle) EnergyRequired(miles float64) float64 {
	return miles * v.Efficiency()
}

// ChargePower returns the usable charge power against a charger's maximum.
// A zero chargerMaxKW means the charger imposes no limit.
func (v *Vehicle) ChargePower(chargerMaxKW float64, dc bool) float64 {
	rate := v.ChargePowerACKW
	if dc {
		rate = v.ChargePowerDCKW
	}
	if chargerMaxKW > 0 && chargerMaxKW < rate {
		return chargerMaxKW
	}
	return rate
}

// Available reports whether the vehicle can take work at all.
func (v *Vehicle) Available() bool {
	return v.Active && !v.VOR && v.Status != StatusVOR
}

// String returns a short identity for logs.
func (v *Vehicle) String() string {
	return fmt.Sprintf("vehicle %d (%s)", v.ID, v.TelematicLabel)
}
