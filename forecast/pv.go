package forecast

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/KKFPS/allocation-v2/charge"
)

// PVOffset models the depot's rooftop PV as a daylight-shaped reduction of
// the site load forecast: zero outside the sunrise-sunset window, a sine
// bump peaking at solar noon inside it.
type PVOffset struct {
	Latitude  float64
	Longitude float64
	PeakKW    float64
}

// OffsetKW returns the expected PV generation at t: zero outside daylight,
// otherwise peak power scaled by the sine of the solar altitude.
func (p PVOffset) OffsetKW(t time.Time) float64 {
	if p.PeakKW <= 0 {
		return 0
	}

	sunTimes := suncalc.GetTimes(t, p.Latitude, p.Longitude)
	sunrise := sunTimes["sunrise"].Value
	sunset := sunTimes["sunset"].Value
	if t.Before(sunrise) || t.After(sunset) {
		return 0
	}

	pos := suncalc.GetPosition(t, p.Latitude, p.Longitude)
	factor := math.Sin(pos.Altitude)
	if factor < 0 {
		return 0
	}
	return p.PeakKW * factor
}

// ApplyPVOffset subtracts the expected PV generation from each slot's load
// forecast, flooring at zero.
func ApplyPVOffset(slots []charge.Slot, pv PVOffset) {
	for i := range slots {
		mid := slots[i].Start.Add(charge.SlotDuration / 2)
		slots[i].LoadForecastKW -= pv.OffsetKW(mid)
		if slots[i].LoadForecastKW < 0 {
			slots[i].LoadForecastKW = 0
		}
	}
}

// ApplyMeterFloor raises the load forecast of slots starting before until to
// at least the live meter average. Forecasts routinely miss loads that are
// already drawing power right now.
func ApplyMeterFloor(slots []charge.Slot, avgKW float64, until time.Time) {
	if avgKW <= 0 {
		return
	}
	for i := range slots {
		if !slots[i].Start.Before(until) {
			break
		}
		if slots[i].LoadForecastKW < avgKW {
			slots[i].LoadForecastKW = avgKW
		}
	}
}
