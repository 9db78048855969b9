package charge

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/KKFPS/allocation-v2/solver"
)

// Greedy is the deterministic fallback scheduler: fill the cheapest available
// slots at full rate until each vehicle's need is met (checkpoints first,
// then target SOC), then clip per-slot totals back under the site capacity.
type Greedy struct {
	logger *log.Logger
}

// NewGreedy creates a greedy scheduler. A nil logger falls back to stdout.
func NewGreedy(logger *log.Logger) *Greedy {
	if logger == nil {
		logger = log.New(os.Stdout, "[CHARGE] ", log.LstdFlags)
	}
	return &Greedy{logger: logger}
}

// Solve schedules vehicles in ascending id order. Ties between equally
// priced slots go to the earlier slot, so the result is deterministic.
func (g *Greedy) Solve(ctx context.Context, p *Problem) (*Schedule, error) {
	start := time.Now()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	costs := p.CostVector()

	vehicles := make([]VehicleChargeState, len(p.Vehicles))
	copy(vehicles, p.Vehicles)
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].VehicleID < vehicles[j].VehicleID })

	power := make(map[int][]float64, len(vehicles))
	for i := range vehicles {
		v := &vehicles[i]
		power[v.VehicleID] = g.scheduleVehicle(p, v, costs)
	}

	g.clipToCapacity(p, vehicles, power)

	schedule := g.assemble(p, vehicles, power)
	schedule.SolveTime = time.Since(start)
	schedule.Outcome = solver.Solved

	g.logger.Printf("Greedy schedule: %d vehicles, %.1f kWh, cost %.2f in %s",
		schedule.VehiclesScheduled, schedule.TotalEnergyKWh, schedule.TotalCost, schedule.SolveTime)
	return schedule, nil
}

// scheduleVehicle picks slots for one vehicle: first enough energy before
// each checkpoint departure, then the rest of the target need anywhere.
func (g *Greedy) scheduleVehicle(p *Problem, v *VehicleChargeState, costs []float64) []float64 {
	slotPower := make([]float64, len(p.Slots))
	if !v.Chargeable() {
		return slotPower
	}

	rate := v.ACRateKW
	if v.ChargerType == "DC" && v.DCRateKW > 0 {
		rate = v.DCRateKW
	}
	if rate <= 0 {
		return slotPower
	}

	avail := p.Availability[v.VehicleID]
	available := func(t int) bool {
		if avail == nil {
			return true
		}
		return avail[t]
	}

	scheduled := func(limit int) float64 {
		total := 0.0
		for t := 0; t < limit; t++ {
			total += slotPower[t] * SlotHours
		}
		return total
	}

	// fill adds energy in the cheapest free slots below the limit index.
	fill := func(needKWh float64, limit int) {
		if needKWh <= 0 {
			return
		}
		order := cheapestFirst(costs[:limit])
		remaining := needKWh
		for _, t := range order {
			if remaining <= 0 {
				break
			}
			if !available(t) || slotPower[t] >= rate {
				continue
			}
			add := rate - slotPower[t]
			if add*SlotHours > remaining {
				add = remaining / SlotHours
			}
			slotPower[t] += add
			remaining -= add * SlotHours
		}
	}

	// Checkpoints: energy before each departure must cover the cumulative
	// requirement beyond the starting SOC.
	for _, cp := range p.Checkpoints[v.VehicleID] {
		k := FindSlotIndex(p.Slots, cp.Departure)
		if k == 0 {
			continue // departs before the window; nothing can be charged
		}
		needed := cp.CumulativeKWh - v.SOCKWh
		if needed <= 0 {
			continue
		}
		fill(needed-scheduled(k), k)
	}

	// Target SOC: the remainder can go anywhere in the window.
	fill(p.TargetEnergy(v)-scheduled(len(p.Slots)), len(p.Slots))

	return slotPower
}

// clipToCapacity reduces per-slot totals back under the site headroom,
// shedding power from higher vehicle ids first.
func (g *Greedy) clipToCapacity(p *Problem, vehicles []VehicleChargeState, power map[int][]float64) {
	if p.SiteCapacityKW <= 0 {
		return
	}
	headroom := p.Headroom()

	for t := range p.Slots {
		total := 0.0
		for _, v := range vehicles {
			total += power[v.VehicleID][t]
		}
		excess := total - headroom[t]
		if excess <= 0 {
			continue
		}

		for i := len(vehicles) - 1; i >= 0 && excess > 0; i-- {
			id := vehicles[i].VehicleID
			cut := power[id][t]
			if cut > excess {
				cut = excess
			}
			power[id][t] -= cut
			excess -= cut
		}
	}
}

// assemble builds the schedule records and totals from the power plan.
func (g *Greedy) assemble(p *Problem, vehicles []VehicleChargeState, power map[int][]float64) *Schedule {
	schedule := &Schedule{
		PlanningStart: p.Slots[0].Start,
		PlanningEnd:   p.Slots[len(p.Slots)-1].Start.Add(SlotDuration),
	}
	schedule.WindowHours = schedule.PlanningEnd.Sub(schedule.PlanningStart).Hours()
	costs := p.CostVector()

	for i := range vehicles {
		v := &vehicles[i]
		slotPower := power[v.VehicleID]

		vs := VehicleSchedule{
			VehicleID:        v.VehicleID,
			InitialSOCKWh:    v.SOCKWh,
			TargetSOCKWh:     p.TargetSOCPercent / 100.0 * v.BatteryCapacity,
			NeededKWh:        p.TargetEnergy(v),
			Checkpoints:      p.Checkpoints[v.VehicleID],
			ChargerID:        v.ChargerID,
			ChargerType:      v.ChargerType,
			MeetsCheckpoints: true,
		}

		cumulative := 0.0
		for t, kw := range slotPower {
			if kw <= 0 {
				continue
			}
			energy := kw * SlotHours
			cumulative += energy
			vs.Slots = append(vs.Slots, ChargeSlot{
				Start:         p.Slots[t].Start,
				PowerKW:       kw,
				CumulativeKWh: cumulative,
				Price:         p.Slots[t].Price,
				Triad:         p.Slots[t].Triad,
			})
			schedule.TotalCost += costs[t] * energy
		}
		vs.ScheduledKWh = cumulative

		if vs.ScheduledKWh < vs.NeededKWh {
			vs.ShortfallKWh = vs.NeededKWh - vs.ScheduledKWh
			schedule.TotalCost += p.ShortfallPenalty * vs.ShortfallKWh
			schedule.ValidationWarnings = append(schedule.ValidationWarnings,
				fmt.Sprintf("vehicle %d short %.1f kWh of target", v.VehicleID, vs.ShortfallKWh))
		}

		for _, cp := range vs.Checkpoints {
			k := FindSlotIndex(p.Slots, cp.Departure)
			charged := 0.0
			for t := 0; t < k; t++ {
				charged += slotPower[t] * SlotHours
			}
			needed := cp.CumulativeKWh - v.SOCKWh
			if needed > 0 && charged+1e-9 < needed {
				vs.MeetsCheckpoints = false
				schedule.ValidationErrors = append(schedule.ValidationErrors,
					fmt.Sprintf("vehicle %d misses checkpoint %s by %.1f kWh",
						v.VehicleID, cp.RouteID, needed-charged))
			}
		}

		schedule.TotalEnergyKWh += vs.ScheduledKWh
		schedule.RoutesConsidered += len(vs.Checkpoints)
		schedule.Checkpoints += len(vs.Checkpoints)
		if vs.ScheduledKWh > 0 {
			schedule.VehiclesScheduled++
		}
		schedule.Vehicles = append(schedule.Vehicles, vs)
	}

	return schedule
}

// cheapestFirst orders slot indices by cost ascending, ties by earlier slot.
func cheapestFirst(costs []float64) []int {
	order := make([]int, len(costs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return costs[order[a]] < costs[order[b]]
	})
	return order
}
