package detection

import "time"

// EpisodeEndReason explains why a drowsy episode closed.
type EpisodeEndReason string

const (
	// EndRecovered means the classifier reported an alert face again.
	EndRecovered EpisodeEndReason = "recovered"
	// EndFaceLost means no face was located.
	EndFaceLost EpisodeEndReason = "face_lost"
	// EndSignalLost means a classifier failure ended the episode.
	EndSignalLost EpisodeEndReason = "signal_lost"
	// EndShutdown means the engine stopped mid-episode.
	EndShutdown EpisodeEndReason = "shutdown"
)

// Episode is one contiguous run of drowsy samples, i.e. one alarm activation.
type Episode struct {
	// ID is assigned by the tracker, monotonically increasing per process.
	ID uint64
	// StartedAt is the time of the first drowsy sample.
	StartedAt time.Time
	// EndedAt is zero while the episode is open.
	EndedAt time.Time
	// Samples counts the drowsy samples in the episode.
	Samples int
	// PeakScore is the highest drowsy score observed.
	PeakScore float64
	// MinEAR is the lowest positive EAR observed, zero when none was reported.
	MinEAR float64
	// EndReason is set once the episode closes.
	EndReason EpisodeEndReason
}

// Open reports whether the episode is still running.
func (e *Episode) Open() bool {
	return e.EndedAt.IsZero()
}

// Duration returns the episode length, measured up to now for open episodes.
func (e *Episode) Duration(now time.Time) time.Duration {
	if e.Open() {
		return now.Sub(e.StartedAt)
	}

	return e.EndedAt.Sub(e.StartedAt)
}

// Observe folds one drowsy sample into the episode.
func (e *Episode) Observe(sample *Sample) {
	e.Samples++

	if sample.DrowsyScore > e.PeakScore {
		e.PeakScore = sample.DrowsyScore
	}

	if sample.EAR > 0 && (e.MinEAR == 0 || sample.EAR < e.MinEAR) {
		e.MinEAR = sample.EAR
	}
}
