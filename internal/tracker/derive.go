package tracker

import "github.com/oshokin/drowsy-alarm/internal/domain/detection"

// Derive returns the tracking state for a sample. A nil sample means no face.
func Derive(sample *detection.Sample) detection.TrackingState {
	switch {
	case !sample.HasFace():
		return detection.StateSearching
	case sample.IsDrowsy:
		return detection.StateDrowsy
	default:
		return detection.StateLocked
	}
}

// statusFor returns the status line and tier for a state.
func statusFor(state detection.TrackingState, ear float64) (string, detection.StatusTier) {
	switch state {
	case detection.StateDrowsy:
		return detection.StatusDrowsy, detection.TierDrowsy
	case detection.StateLocked:
		if ear > 0 && ear < detection.HeavyEyesEAR {
			return detection.StatusLockedHeavy, detection.TierHeavy
		}

		return detection.StatusLockedAlert, detection.TierAlert
	default:
		return detection.StatusSearching, detection.TierSearching
	}
}
