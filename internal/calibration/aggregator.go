package calibration

import (
	"sync"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// Aggregator keeps the running min/max/mean of the EAR while calibration is on.
type Aggregator struct {
	// mu protects every field below.
	mu sync.Mutex
	// enabled reports whether calibration mode is on.
	enabled bool
	// stats is the current accumulator.
	stats detection.CalibrationStats
}

// New returns an aggregator with calibration off and an empty accumulator.
func New() *Aggregator {
	return new(Aggregator)
}

// Toggle switches calibration mode. Turning it on clears the accumulator;
// turning it off keeps the last values for display.
func (a *Aggregator) Toggle(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if on {
		a.stats = detection.CalibrationStats{}
	}

	a.enabled = on
}

// Enabled reports whether calibration mode is on.
func (a *Aggregator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.enabled
}

// Observe folds one EAR value into the accumulator. It is a no-op while
// calibration is off and reports whether the value was accepted.
func (a *Aggregator) Observe(ear float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return false
	}

	s := &a.stats
	count := s.Count + 1

	switch {
	case s.Min == nil:
		s.Min = ptr(ear)
	case ear < *s.Min:
		*s.Min = ear
	}

	switch {
	case s.Max == nil:
		s.Max = ptr(ear)
	case ear > *s.Max:
		*s.Max = ear
	}

	if s.Avg == nil {
		s.Avg = ptr(ear)
	} else {
		*s.Avg = (*s.Avg*float64(s.Count) + ear) / float64(count)
	}

	s.Count = count

	return true
}

// Stats returns a copy of the accumulator.
func (a *Aggregator) Stats() detection.CalibrationStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.stats.Clone()
}

// Restore seeds the accumulator with a previously saved baseline without
// enabling calibration, so the last result stays visible after a restart.
func (a *Aggregator) Restore(stats detection.CalibrationStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled {
		return
	}

	a.stats = stats.Clone()
}

func ptr(v float64) *float64 {
	return &v
}
