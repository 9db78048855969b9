package fleet

import "testing"

func TestAvailableEnergy(t *testing.T) {
	tests := []struct {
		name         string
		estimatedSOC float64
		returnSOC    float64
		want         float64
	}{
		{name: "estimated SOC wins", estimatedSOC: 50, returnSOC: 80, want: 50},
		{name: "return SOC as fallback", estimatedSOC: UnknownSOC, returnSOC: 80, want: 80},
		{name: "no reading assumes full", estimatedSOC: UnknownSOC, returnSOC: UnknownSOC, want: 100},
		{name: "zero estimated SOC is a reading", estimatedSOC: 0, returnSOC: 80, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVehicle(1, 1)
			v.BatteryCapacity = 100
			v.EstimatedSOC = tt.estimatedSOC
			v.ReturnSOC = tt.returnSOC
			if got := v.AvailableEnergy(); got != tt.want {
				t.Errorf("AvailableEnergy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEfficiencyFallback(t *testing.T) {
	v := NewVehicle(1, 1)
	if got := v.Efficiency(); got != DefaultFleetEfficiency {
		t.Errorf("Efficiency fallback = %v, want %v", got, DefaultFleetEfficiency)
	}
	v.EfficiencyKWhMile = 0.5
	if got := v.Efficiency(); got != 0.5 {
		t.Errorf("Efficiency = %v, want 0.5", got)
	}
	if got := v.EnergyRequired(40); got != 20.0 {
		t.Errorf("EnergyRequired(40) = %v, want 20", got)
	}
}

func TestChargePower(t *testing.T) {
	v := NewVehicle(1, 1)
	v.ChargePowerACKW = 22
	v.ChargePowerDCKW = 120

	tests := []struct {
		name         string
		chargerMaxKW float64
		dc           bool
		want         float64
	}{
		{name: "AC unconstrained", chargerMaxKW: 0, dc: false, want: 22},
		{name: "AC charger limits", chargerMaxKW: 11, dc: false, want: 11},
		{name: "DC unconstrained", chargerMaxKW: 0, dc: true, want: 120},
		{name: "DC charger limits", chargerMaxKW: 50, dc: true, want: 50},
		{name: "charger above vehicle rate", chargerMaxKW: 150, dc: true, want: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.ChargePower(tt.chargerMaxKW, tt.dc); got != tt.want {
				t.Errorf("ChargePower = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvailable(t *testing.T) {
	v := NewVehicle(1, 1)
	if !v.Available() {
		t.Error("fresh active vehicle should be available")
	}

	v.VOR = true
	if v.Available() {
		t.Error("VOR flag should make the vehicle unavailable")
	}

	v.VOR = false
	v.Status = StatusVOR
	if v.Available() {
		t.Error("VOR status should make the vehicle unavailable")
	}

	v.Status = StatusOnRoute
	if !v.Available() {
		t.Error("on-route vehicles are still available for future work")
	}

	v.Active = false
	if v.Available() {
		t.Error("inactive vehicles are unavailable")
	}
}
