package detection

import "time"

// Suggestions are shown to the subject while an alarm episode is running.
//
//nolint:gochecknoglobals // Read-only table.
var Suggestions = []string{
	"Take a coffee break",
	"Walk around for 5 minutes",
	"Drink some water",
	"Open a window for fresh air",
	"Do some stretches",
	"Consider taking a power nap",
}

// Snapshot is the per-tick tuple emitted to the presentation layer.
type Snapshot struct {
	// Status is the human-readable status line.
	Status string
	// Tier grades Status for styling.
	Tier StatusTier
	// State is the derived tracking state.
	State TrackingState
	// FaceBox is the located face or nil.
	FaceBox *FaceBox
	// EAR is the last reported eye aspect ratio.
	EAR float64
	// DrowsyScore is the last fatigue indicator, reset to zero without a face.
	DrowsyScore float64
	// Confidence is the last classifier confidence, reset to zero without a face.
	Confidence float64
	// AlarmActive mirrors the alarm actuator flag.
	AlarmActive bool
	// CameraActive reports whether the camera stream is held.
	CameraActive bool
	// Calibrating reports whether calibration mode is on.
	Calibrating bool
	// Calibration holds the current or last calibration stats.
	Calibration CalibrationStats
	// Message is the classifier hint for the last sample.
	Message string
	// Suggestions are populated while drowsy.
	Suggestions []string
	// Sequence is the number of applied round trips.
	Sequence uint64
	// UpdatedAt is when the snapshot was produced.
	UpdatedAt time.Time
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.FaceBox = s.FaceBox.Clone()
	cloned.Calibration = s.Calibration.Clone()

	if s.Suggestions != nil {
		cloned.Suggestions = append([]string(nil), s.Suggestions...)
	}

	return &cloned
}
