package params

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date, decoded from parameters
// with a _period key suffix. Windows built from two TimeOfDay values may
// cross midnight.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM or HH:MM:SS", s)
	}

	fields := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		fields[i] = n
	}

	tod := TimeOfDay{Hour: fields[0], Minute: fields[1], Second: fields[2]}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 || tod.Second < 0 || tod.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: out of range", s)
	}
	return tod, nil
}

// SecondsFromMidnight returns the offset from midnight in seconds.
func (t TimeOfDay) SecondsFromMidnight() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Contains reports whether the wall-clock part of ts falls inside the daily
// window [start, end). A window whose end precedes its start wraps midnight.
func Contains(start, end TimeOfDay, ts time.Time) bool {
	s := start.SecondsFromMidnight()
	e := end.SecondsFromMidnight()
	now := ts.Hour()*3600 + ts.Minute()*60 + ts.Second()

	if s == e {
		return false
	}
	if s < e {
		return now >= s && now < e
	}
	// Crosses midnight.
	return now >= s || now < e
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
