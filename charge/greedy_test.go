package charge

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/KKFPS/allocation-v2/solver"
)

var testLogger = log.New(os.Stdout, "[TEST] ", log.LstdFlags)

func flatPrices(start time.Time, hours int, price float64) []PricePoint {
	var prices []PricePoint
	for t := start; t.Before(start.Add(time.Duration(hours) * time.Hour)); t = t.Add(SlotDuration) {
		prices = append(prices, PricePoint{Timestamp: t, EnergyPrice: price})
	}
	return prices
}

func TestGreedyMeetsTarget(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	slots := BuildSlots(base, base.Add(8*time.Hour), flatPrices(base, 8, 0.20))

	v := VehicleChargeState{
		VehicleID:       1,
		SOCKWh:          40,
		BatteryCapacity: 100,
		Connected:       true,
		ChargerType:     "AC",
		ACRateKW:        22,
		Status:          "Idle",
	}
	p := NewProblem(slots, []VehicleChargeState{v})

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if schedule.Outcome != solver.Solved {
		t.Fatalf("Outcome = %v, want Solved", schedule.Outcome)
	}
	if len(schedule.Vehicles) != 1 {
		t.Fatalf("vehicle schedules = %d, want 1", len(schedule.Vehicles))
	}

	vs := schedule.Vehicles[0]
	// Needs 35 kWh to reach 75%; 16 slots at 22 kW can deliver far more.
	if !almost(vs.ScheduledKWh, 35.0) {
		t.Errorf("ScheduledKWh = %v, want 35", vs.ScheduledKWh)
	}
	if vs.ShortfallKWh != 0 {
		t.Errorf("ShortfallKWh = %v, want 0", vs.ShortfallKWh)
	}
	if !vs.MeetsCheckpoints {
		t.Error("no checkpoints means MeetsCheckpoints stays true")
	}
	if !schedule.Valid() {
		t.Errorf("schedule invalid: %v", schedule.ValidationErrors)
	}
}

func TestGreedyPrefersCheapSlots(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	prices := flatPrices(base, 4, 0.40)
	// Slots 4..7 (20:00 on) are half price.
	for i := range prices {
		if i >= 4 {
			prices[i].EnergyPrice = 0.10
		}
	}
	slots := BuildSlots(base, base.Add(4*time.Hour), prices)

	v := VehicleChargeState{
		VehicleID:       1,
		SOCKWh:          53, // needs 22 kWh: exactly two slots at 22 kW
		BatteryCapacity: 100,
		Connected:       true,
		ACRateKW:        22,
		Status:          "Idle",
	}
	p := NewProblem(slots, []VehicleChargeState{v})

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	for _, slot := range schedule.Vehicles[0].Slots {
		if slot.Price != 0.10 {
			t.Errorf("charged in a %.2f slot at %s while cheaper slots were free",
				slot.Price, slot.Start.Format("15:04"))
		}
	}
}

func TestGreedyAvoidsTriadSlots(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	prices := flatPrices(base, 2, 0.20)
	prices[0].TriadFlag = true
	slots := BuildSlots(base, base.Add(2*time.Hour), prices)

	v := VehicleChargeState{
		VehicleID:       1,
		SOCKWh:          64, // needs 11 kWh = one slot at 22 kW
		BatteryCapacity: 100,
		Connected:       true,
		ACRateKW:        22,
		Status:          "Idle",
	}
	p := NewProblem(slots, []VehicleChargeState{v})

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	for _, slot := range schedule.Vehicles[0].Slots {
		if slot.Triad {
			t.Error("charged in a triad slot while plain slots were free")
		}
	}
}

func TestGreedyAvoidsFreeTriadSlot(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	// The triad slot is free; the penalty must repel charging regardless of
	// the market price.
	prices := flatPrices(base, 2, 0.20)
	prices[0].EnergyPrice = 0
	prices[0].TriadFlag = true
	slots := BuildSlots(base, base.Add(2*time.Hour), prices)

	v := VehicleChargeState{
		VehicleID:       1,
		SOCKWh:          64, // needs 11 kWh = one slot at 22 kW
		BatteryCapacity: 100,
		Connected:       true,
		ACRateKW:        22,
		Status:          "Idle",
	}
	p := NewProblem(slots, []VehicleChargeState{v})

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	for _, slot := range schedule.Vehicles[0].Slots {
		if slot.Triad {
			t.Error("charged in a free triad slot instead of a paid plain slot")
		}
	}
}

func TestGreedyCheckpointBeforeDeparture(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	// Prices fall over the window, so unconstrained charging would drift to
	// the end, after the departure.
	prices := flatPrices(base, 8, 0.40)
	for i := range prices {
		prices[i].EnergyPrice = 0.40 - float64(i)*0.02
	}
	slots := BuildSlots(base, base.Add(8*time.Hour), prices)

	departure := base.Add(2 * time.Hour)
	v := VehicleChargeState{
		VehicleID:       1,
		SOCKWh:          10,
		BatteryCapacity: 100,
		Connected:       true,
		ACRateKW:        50,
		Status:          "Idle",
	}
	p := NewProblem(slots, []VehicleChargeState{v})
	p.Checkpoints[1] = []Checkpoint{{
		RouteID:       "R1",
		VehicleID:     1,
		Departure:     departure,
		CumulativeKWh: 50, // needs 40 kWh beyond the 10 on board
	}}

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	vs := schedule.Vehicles[0]
	if !vs.MeetsCheckpoints {
		t.Fatalf("checkpoint missed: %v", schedule.ValidationErrors)
	}
	charged := 0.0
	for _, slot := range vs.Slots {
		if slot.Start.Before(departure) {
			charged += slot.PowerKW * SlotHours
		}
	}
	if charged+1e-9 < 40 {
		t.Errorf("charged %.1f kWh before departure, want at least 40", charged)
	}
}

func TestGreedyClipsToSiteCapacity(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	slots := BuildSlots(base, base.Add(time.Hour), flatPrices(base, 1, 0.20))

	mk := func(id int) VehicleChargeState {
		return VehicleChargeState{
			VehicleID:       id,
			SOCKWh:          0,
			BatteryCapacity: 100,
			Connected:       true,
			ACRateKW:        50,
			Status:          "Idle",
		}
	}
	p := NewProblem(slots, []VehicleChargeState{mk(1), mk(2)})
	p.SiteCapacityKW = 60 // room for just over one vehicle at full rate

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	// Per-slot totals stay under capacity; vehicle 2 sheds first.
	for t1 := range slots {
		total := 0.0
		var v1, v2 float64
		for _, vs := range schedule.Vehicles {
			for _, slot := range vs.Slots {
				if slot.Start.Equal(slots[t1].Start) {
					total += slot.PowerKW
					if vs.VehicleID == 1 {
						v1 = slot.PowerKW
					} else {
						v2 = slot.PowerKW
					}
				}
			}
		}
		if total > 60+1e-9 {
			t.Errorf("slot %d total %.1f kW exceeds the 60 kW capacity", t1, total)
		}
		if v2 > v1 {
			t.Errorf("slot %d: vehicle 2 (%.1f kW) kept more than vehicle 1 (%.1f kW)", t1, v2, v1)
		}
	}
}

func TestGreedyShortfallPenalty(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	slots := BuildSlots(base, base.Add(time.Hour), flatPrices(base, 1, 0.20))

	v := VehicleChargeState{
		VehicleID:       1,
		SOCKWh:          0,
		BatteryCapacity: 100,
		Connected:       true,
		ACRateKW:        10, // 10 kWh max in the window, target needs 75
		Status:          "Idle",
	}
	p := NewProblem(slots, []VehicleChargeState{v})

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	vs := schedule.Vehicles[0]
	if !almost(vs.ShortfallKWh, 65.0) {
		t.Errorf("ShortfallKWh = %v, want 65", vs.ShortfallKWh)
	}
	if len(schedule.ValidationWarnings) == 0 {
		t.Error("shortfall should produce a warning")
	}
	if schedule.TotalCost < DefaultShortfallPenalty*60 {
		t.Errorf("TotalCost = %v, want the shortfall penalty dominating", schedule.TotalCost)
	}
}

func TestGreedySkipsUnchargeable(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	slots := BuildSlots(base, base.Add(2*time.Hour), flatPrices(base, 2, 0.20))

	states := []VehicleChargeState{
		{VehicleID: 1, SOCKWh: 0, BatteryCapacity: 100, Connected: false, ACRateKW: 22, Status: "Idle"},
		{VehicleID: 2, SOCKWh: 0, BatteryCapacity: 100, Connected: true, ACRateKW: 22, Status: "VOR"},
	}
	p := NewProblem(slots, states)

	schedule, err := NewGreedy(testLogger).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if schedule.VehiclesScheduled != 0 {
		t.Errorf("VehiclesScheduled = %d, want 0 for disconnected and VOR vehicles", schedule.VehiclesScheduled)
	}
}

func TestProblemValidate(t *testing.T) {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	slots := BuildSlots(base, base.Add(time.Hour), nil)

	t.Run("no slots", func(t *testing.T) {
		p := NewProblem(nil, nil)
		if err := p.Validate(); !errors.Is(err, solver.ErrData) {
			t.Errorf("err = %v, want ErrData", err)
		}
	})

	t.Run("target SOC out of range", func(t *testing.T) {
		p := NewProblem(slots, nil)
		p.TargetSOCPercent = 120
		if err := p.Validate(); !errors.Is(err, solver.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})

	t.Run("missing battery capacity", func(t *testing.T) {
		p := NewProblem(slots, []VehicleChargeState{{VehicleID: 1}})
		if err := p.Validate(); !errors.Is(err, solver.ErrData) {
			t.Errorf("err = %v, want ErrData", err)
		}
	})

	t.Run("availability length mismatch", func(t *testing.T) {
		p := NewProblem(slots, []VehicleChargeState{{VehicleID: 1, BatteryCapacity: 100}})
		p.Availability[1] = []bool{true}
		if err := p.Validate(); !errors.Is(err, solver.ErrData) {
			t.Errorf("err = %v, want ErrData", err)
		}
	})
}
