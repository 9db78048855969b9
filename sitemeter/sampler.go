package sitemeter

import (
	"sync"
	"time"
)

// Sampler keeps a bounded history of meter readings and answers windowed
// averages. Safe for concurrent use.
type Sampler struct {
	mu      sync.Mutex
	samples []Reading
	max     int
}

// NewSampler creates a sampler keeping at most max readings.
func NewSampler(max int) *Sampler {
	if max <= 0 {
		max = 256
	}
	return &Sampler{max: max}
}

// Add records a reading, evicting the oldest past the cap.
func (s *Sampler) Add(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, r)
	if len(s.samples) > s.max {
		s.samples = s.samples[len(s.samples)-s.max:]
	}
}

// Count returns the number of retained samples.
func (s *Sampler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// AverageKW returns the mean active power over the trailing window. The
// second return is false when no sample falls inside it.
func (s *Sampler) AverageKW(window time.Duration) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-window)
	total := 0.0
	count := 0
	for _, sample := range s.samples {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		total += sample.ActivePowerKW
		count++
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}

// Latest returns the most recent reading. The second return is false when
// no sample exists.
func (s *Sampler) Latest() (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return Reading{}, false
	}
	return s.samples[len(s.samples)-1], true
}
