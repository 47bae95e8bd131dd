package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/drowsy-alarm/internal/classifier"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// Actuator is the alarm driven by the tracker.
type Actuator interface {
	Activate(ctx context.Context)
	Deactivate(ctx context.Context)
	Active() bool
}

// Calibrator accumulates EAR statistics while calibration mode is on.
type Calibrator interface {
	Toggle(on bool)
	Enabled() bool
	Observe(ear float64) bool
	Stats() detection.CalibrationStats
}

// EpisodeRecorder receives drowsy episode transitions.
// Calls happen outside of the tracker lock, in transition order.
type EpisodeRecorder interface {
	EpisodeStarted(ctx context.Context, episode detection.Episode)
	EpisodeEnded(ctx context.Context, episode detection.Episode)
}

// Observer receives per-round-trip outcomes. Metrics implement it.
type Observer interface {
	SampleApplied(state detection.TrackingState)
	ClassifierFailed(kind string)
}

// Tracker owns the current snapshot and applies classifier outcomes to it.
type Tracker struct {
	// actuator is the alarm driven by the drowsy state.
	actuator Actuator
	// calibrator receives EAR values while calibrating.
	calibrator Calibrator
	// recorders receive episode transitions.
	recorders []EpisodeRecorder
	// observer receives round-trip outcomes, may be nil.
	observer Observer
	// now returns the current time.
	now func() time.Time
	// sampleTrace logs every sample at debug level regardless of the process level.
	sampleTrace bool

	// mu guards the fields below.
	mu sync.Mutex
	// snapshot is the latest presentation tuple.
	snapshot detection.Snapshot
	// episode is the open drowsy episode or nil.
	episode *detection.Episode
	// lastEpisodeID is the ID of the most recently opened episode.
	lastEpisodeID uint64
}

// Option configures the tracker.
type Option func(*Tracker)

// WithRecorder registers an episode recorder.
func WithRecorder(recorder EpisodeRecorder) Option {
	return func(t *Tracker) {
		if recorder != nil {
			t.recorders = append(t.recorders, recorder)
		}
	}
}

// WithObserver registers a round-trip observer.
func WithObserver(observer Observer) Option {
	return func(t *Tracker) {
		t.observer = observer
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSampleTrace enables per-sample debug logging.
func WithSampleTrace(enabled bool) Option {
	return func(t *Tracker) {
		t.sampleTrace = enabled
	}
}

// New creates a tracker in the Searching state.
func New(actuator Actuator, calibrator Calibrator, opts ...Option) *Tracker {
	t := &Tracker{
		actuator:   actuator,
		calibrator: calibrator,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.snapshot = detection.Snapshot{
		Status:    detection.StatusInitializing,
		Tier:      detection.TierStarting,
		State:     detection.StateSearching,
		UpdatedAt: t.now(),
	}

	return t
}

// episodeEvent is a pending recorder notification.
type episodeEvent struct {
	episode detection.Episode
	started bool
}

// Apply folds one classifier sample into the state and returns the new snapshot.
func (t *Tracker) Apply(ctx context.Context, sample *detection.Sample) *detection.Snapshot {
	if sample == nil {
		sample = &detection.Sample{}
	}

	state := Derive(sample)

	if t.sampleTrace {
		logger.Verbose(logger.FromContext(ctx), zapcore.DebugLevel).Debugw("Classifier sample",
			"state", state,
			"ear", sample.EAR,
			"drowsy_score", sample.DrowsyScore,
			"frame_counter", sample.FrameCounter,
			"message", sample.Message)
	}

	t.mu.Lock()

	var events []episodeEvent

	s := &t.snapshot
	s.State = state
	s.FaceBox = sample.FaceBox.Clone()
	s.Message = sample.Message
	s.Sequence++

	// A missing EAR keeps the last displayed value.
	if sample.EAR > 0 {
		s.EAR = sample.EAR
	}

	if state == detection.StateSearching {
		s.DrowsyScore = 0
		s.Confidence = 0
	} else {
		s.DrowsyScore = sample.DrowsyScore
		s.Confidence = sample.Confidence
	}

	s.Status, s.Tier = statusFor(state, sample.EAR)

	if state == detection.StateDrowsy {
		t.actuator.Activate(ctx)

		events = t.openEpisode(events, sample)
		s.Suggestions = detection.Suggestions
	} else {
		t.actuator.Deactivate(ctx)

		reason := detection.EndRecovered
		if state == detection.StateSearching {
			reason = detection.EndFaceLost
		}

		events = t.closeEpisode(events, reason)
		s.Suggestions = nil
	}

	if t.calibrator.Enabled() && sample.HasFace() && sample.EAR > 0 {
		t.calibrator.Observe(sample.EAR)
	}

	result := t.publishLocked()

	t.mu.Unlock()

	if t.observer != nil {
		t.observer.SampleApplied(state)
	}

	t.dispatch(ctx, events)

	return result
}

// Fail applies a classifier failure: the state drops to Searching and the alarm stops.
// Exactly one error-level diagnostic is logged per call.
func (t *Tracker) Fail(ctx context.Context, err error) *detection.Snapshot {
	kind := logFailure(ctx, err)

	t.mu.Lock()

	s := &t.snapshot
	s.State = detection.StateSearching
	s.FaceBox = nil
	s.DrowsyScore = 0
	s.Confidence = 0
	s.Status = detection.StatusConnectionError
	s.Tier = detection.TierError
	s.Message = ""
	s.Suggestions = nil
	s.Sequence++

	t.actuator.Deactivate(ctx)

	events := t.closeEpisode(nil, detection.EndSignalLost)
	result := t.publishLocked()

	t.mu.Unlock()

	if t.observer != nil {
		t.observer.ClassifierFailed(kind)
	}

	t.dispatch(ctx, events)

	return result
}

// CameraAcquired marks the camera as held.
func (t *Tracker) CameraAcquired() *detection.Snapshot {
	return t.lifecycle(true, detection.StatusCameraActive, detection.TierStarting)
}

// CameraDenied marks the camera acquisition as failed.
func (t *Tracker) CameraDenied() *detection.Snapshot {
	return t.lifecycle(false, detection.StatusCameraDenied, detection.TierError)
}

// Stopped resets the state after the engine released its resources.
// An open episode is closed with EndShutdown.
func (t *Tracker) Stopped(ctx context.Context) *detection.Snapshot {
	t.mu.Lock()

	t.actuator.Deactivate(ctx)

	events := t.closeEpisode(nil, detection.EndShutdown)

	s := &t.snapshot
	s.State = detection.StateSearching
	s.FaceBox = nil
	s.DrowsyScore = 0
	s.Confidence = 0
	s.Suggestions = nil
	s.CameraActive = false
	s.Status = detection.StatusStopped
	s.Tier = detection.TierStarting

	result := t.publishLocked()

	t.mu.Unlock()

	t.dispatch(ctx, events)

	return result
}

// SetCalibrating toggles calibration mode. Turning it on resets the statistics.
func (t *Tracker) SetCalibrating(on bool) *detection.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calibrator.Toggle(on)

	return t.publishLocked()
}

// Snapshot returns a copy of the latest snapshot.
func (t *Tracker) Snapshot() *detection.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.publishLocked()
}

// Episode returns a copy of the open episode, or nil.
func (t *Tracker) Episode() *detection.Episode {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.episode == nil {
		return nil
	}

	episode := *t.episode

	return &episode
}

func (t *Tracker) lifecycle(cameraActive bool, status string, tier detection.StatusTier) *detection.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot.CameraActive = cameraActive
	t.snapshot.Status = status
	t.snapshot.Tier = tier

	return t.publishLocked()
}

// publishLocked refreshes the mirrored fields and returns a copy.
func (t *Tracker) publishLocked() *detection.Snapshot {
	t.snapshot.AlarmActive = t.actuator.Active()
	t.snapshot.Calibrating = t.calibrator.Enabled()
	t.snapshot.Calibration = t.calibrator.Stats()
	t.snapshot.UpdatedAt = t.now()

	return t.snapshot.Clone()
}

func (t *Tracker) openEpisode(events []episodeEvent, sample *detection.Sample) []episodeEvent {
	if t.episode == nil {
		t.lastEpisodeID++
		t.episode = &detection.Episode{
			ID:        t.lastEpisodeID,
			StartedAt: t.now(),
		}

		t.episode.Observe(sample)

		return append(events, episodeEvent{episode: *t.episode, started: true})
	}

	t.episode.Observe(sample)

	return events
}

func (t *Tracker) closeEpisode(events []episodeEvent, reason detection.EpisodeEndReason) []episodeEvent {
	if t.episode == nil {
		return events
	}

	t.episode.EndedAt = t.now()
	t.episode.EndReason = reason

	events = append(events, episodeEvent{episode: *t.episode})
	t.episode = nil

	return events
}

func (t *Tracker) dispatch(ctx context.Context, events []episodeEvent) {
	for _, event := range events {
		if event.started {
			logger.WarnKV(ctx, "Drowsy episode started", "episode", event.episode.ID)
		} else {
			logger.InfoKV(ctx, "Drowsy episode ended",
				"episode", event.episode.ID,
				"reason", event.episode.EndReason,
				"duration", event.episode.Duration(event.episode.EndedAt),
				"peak_score", event.episode.PeakScore)
		}

		for _, recorder := range t.recorders {
			if event.started {
				recorder.EpisodeStarted(ctx, event.episode)
			} else {
				recorder.EpisodeEnded(ctx, event.episode)
			}
		}
	}
}

// logFailure writes the single diagnostic record of a failure and returns its kind.
func logFailure(ctx context.Context, err error) string {
	var (
		appErr       *classifier.ApplicationError
		transportErr *classifier.TransportError
	)

	switch {
	case errors.As(err, &appErr):
		logger.ErrorKV(ctx, "Classifier round trip failed",
			"kind", classifier.KindApplication,
			"status", appErr.Status,
			"message", appErr.Message)

		return classifier.KindApplication
	case errors.As(err, &transportErr):
		logger.ErrorKV(ctx, "Classifier round trip failed",
			"kind", classifier.KindTransport,
			"error", transportErr.Cause)

		return classifier.KindTransport
	default:
		logger.ErrorKV(ctx, "Classifier round trip failed",
			"kind", classifier.KindTransport,
			"error", err)

		return classifier.KindTransport
	}
}
