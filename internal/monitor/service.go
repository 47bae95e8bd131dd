package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// StateTracker is the part of the tracker the presentation inputs need.
type StateTracker interface {
	SetCalibrating(on bool) *detection.Snapshot
	Snapshot() *detection.Snapshot
}

// CalibrationRecorder receives finished calibration sessions.
type CalibrationRecorder interface {
	CalibrationFinished(ctx context.Context, session detection.CalibrationSession) error
}

// Service exposes the engine to the presentation layer: engine start and stop,
// the calibration toggle and the current snapshot.
type Service struct {
	// engine is the sampling loop.
	engine *Engine
	// tracker owns the snapshot and the calibration toggle.
	tracker StateTracker
	// recorders persist finished calibration sessions.
	recorders []CalibrationRecorder
	// sinks receive snapshots produced by presentation inputs.
	sinks []Sink

	// mu serializes calibration toggles.
	mu sync.Mutex
	// calibrationStarted is zero unless calibrating.
	calibrationStarted time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithCalibrationRecorder registers a calibration session recorder.
func WithCalibrationRecorder(recorder CalibrationRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.recorders = append(s.recorders, recorder)
		}
	}
}

// WithServiceSink registers a sink for snapshots produced outside of ticks.
func WithServiceSink(sink Sink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// NewService creates the presentation facade.
func NewService(engine *Engine, tracker StateTracker, opts ...ServiceOption) *Service {
	s := &Service{
		engine:  engine,
		tracker: tracker,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start starts the engine.
func (s *Service) Start(ctx context.Context) error {
	return s.engine.Start(ctx)
}

// Stop stops the engine.
func (s *Service) Stop(ctx context.Context) {
	s.engine.Stop(ctx)
}

// Running reports whether the sampling loop is active.
func (s *Service) Running() bool {
	return s.engine.Running()
}

// Snapshot returns the current snapshot.
func (s *Service) Snapshot() *detection.Snapshot {
	return s.tracker.Snapshot()
}

// SetCalibration toggles calibration mode. Switching it off hands the session to the recorders,
// switching it on while calibrating finishes the running session before starting a new one.
// Recorder failures are logged and do not fail the toggle.
func (s *Service) SetCalibration(ctx context.Context, on bool) *detection.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOn := !s.calibrationStarted.IsZero()
	if wasOn && on {
		s.finishCalibration(ctx, s.tracker.Snapshot())
	}

	snapshot := s.tracker.SetCalibrating(on)

	switch {
	case on:
		s.calibrationStarted = snapshot.UpdatedAt
		logger.Info(ctx, "Calibration started")
	case wasOn:
		s.finishCalibration(ctx, snapshot)
	}

	for _, sink := range s.sinks {
		sink.Publish(ctx, snapshot)
	}

	return snapshot
}

// finishCalibration closes the running session with the statistics of snapshot.
func (s *Service) finishCalibration(ctx context.Context, snapshot *detection.Snapshot) {
	session := detection.CalibrationSession{
		StartedAt: s.calibrationStarted,
		EndedAt:   snapshot.UpdatedAt,
		Stats:     snapshot.Calibration.Clone(),
	}

	s.calibrationStarted = time.Time{}

	logger.InfoKV(ctx, "Calibration finished",
		"count", session.Stats.Count,
		"ready", session.Stats.Ready())

	if hint := session.Stats.Hint(); hint != "" {
		logger.Warn(ctx, hint)
	}

	for _, recorder := range s.recorders {
		if err := recorder.CalibrationFinished(ctx, session); err != nil {
			logger.WarnKV(ctx, "Failed to record calibration session", "error", err)
		}
	}
}
