package detection

import "time"

// Calibration display thresholds.
const (
	// CalibrationReadyCount is the number of samples after which results are meaningful.
	CalibrationReadyCount = 5
	// CalibrationLowAverage flags a baseline that makes detection over-sensitive.
	CalibrationLowAverage = 0.30
)

// CalibrationStats is the running min/max/mean of the EAR over a calibration session.
// Min, Max and Avg are nil until the first observation.
type CalibrationStats struct {
	Min   *float64
	Max   *float64
	Avg   *float64
	Count int
}

// Clone returns a deep copy of the stats.
func (c CalibrationStats) Clone() CalibrationStats {
	return CalibrationStats{
		Min:   cloneFloat(c.Min),
		Max:   cloneFloat(c.Max),
		Avg:   cloneFloat(c.Avg),
		Count: c.Count,
	}
}

// Ready reports whether enough samples were collected to display results.
func (c CalibrationStats) Ready() bool {
	return c.Count > CalibrationReadyCount
}

// Hint returns an operator tip for a low baseline, or an empty string.
func (c CalibrationStats) Hint() string {
	if !c.Ready() || c.Avg == nil || *c.Avg >= CalibrationLowAverage {
		return ""
	}

	return "Average below 0.30, detection might be too sensitive. Check your lighting and camera angle!"
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}

	cloned := *v

	return &cloned
}

// CalibrationSession is one completed calibration run.
type CalibrationSession struct {
	// StartedAt is when calibration mode was switched on.
	StartedAt time.Time
	// EndedAt is when calibration mode was switched off.
	EndedAt time.Time
	// Stats are the accumulated statistics.
	Stats CalibrationStats
}
