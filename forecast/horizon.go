// Package forecast shapes the site load forecast used by charge scheduling:
// data horizons from storage, a daylight-shaped PV offset, and a live-meter
// floor for the near-term slots.
package forecast

import "time"

// DataHorizon reports how far ahead forecast and price data extend. A zero
// timestamp means no data of that kind.
type DataHorizon struct {
	Now         time.Time
	MaxForecast time.Time
	MaxPrice    time.Time
}

// Effective returns the earliest limiting timestamp. The second return is
// false when neither series has data.
func (h DataHorizon) Effective() (time.Time, bool) {
	switch {
	case h.MaxForecast.IsZero() && h.MaxPrice.IsZero():
		return time.Time{}, false
	case h.MaxForecast.IsZero():
		return h.MaxPrice, true
	case h.MaxPrice.IsZero():
		return h.MaxForecast, true
	case h.MaxForecast.Before(h.MaxPrice):
		return h.MaxForecast, true
	default:
		return h.MaxPrice, true
	}
}

// ForecastHoursAvailable returns the hours of load forecast ahead of Now,
// never negative.
func (h DataHorizon) ForecastHoursAvailable() float64 {
	return hoursAhead(h.Now, h.MaxForecast)
}

// PriceHoursAvailable returns the hours of price data ahead of Now, never
// negative.
func (h DataHorizon) PriceHoursAvailable() float64 {
	return hoursAhead(h.Now, h.MaxPrice)
}

func hoursAhead(now, max time.Time) float64 {
	if max.IsZero() {
		return 0
	}
	hours := max.Sub(now).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}
