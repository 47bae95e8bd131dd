package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// Classifier turns a frame into a sample.
type Classifier interface {
	Detect(ctx context.Context, frame camera.Frame) (*detection.Sample, error)
}

// Tracker is the state machine fed by the engine.
type Tracker interface {
	Apply(ctx context.Context, sample *detection.Sample) *detection.Snapshot
	Fail(ctx context.Context, err error) *detection.Snapshot
	CameraAcquired() *detection.Snapshot
	CameraDenied() *detection.Snapshot
	Stopped(ctx context.Context) *detection.Snapshot
}

// Alarm is released unconditionally when the loop exits.
type Alarm interface {
	Close(ctx context.Context)
}

// Sink receives every snapshot. Publish is called synchronously and must not block.
type Sink interface {
	Publish(ctx context.Context, snapshot *detection.Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snapshot *detection.Snapshot)

// Publish calls f(ctx, snapshot).
func (f SinkFunc) Publish(ctx context.Context, snapshot *detection.Snapshot) {
	f(ctx, snapshot)
}

// TickObserver receives loop events. Metrics implement it.
type TickObserver interface {
	TickStarted()
	TickSkipped()
	RoundTripFinished(duration time.Duration, err error)
	CaptureFailed()
}

// ErrCameraDenied is returned by Start when the camera cannot be acquired.
var ErrCameraDenied = camera.ErrDenied

// Engine is the fixed-cadence sampling loop.
type Engine struct {
	// source acquires the camera.
	source camera.Source
	// classifier performs the round trips.
	classifier Classifier
	// tracker applies the results.
	tracker Tracker
	// alarm is closed on every exit path of the loop.
	alarm Alarm

	// constraints are the requested frame dimensions.
	constraints camera.Constraints
	// tickInterval is the time between tick starts.
	tickInterval time.Duration
	// startupDelay separates camera acquisition from the ticker start.
	startupDelay time.Duration
	// sinks receive every snapshot.
	sinks []Sink
	// observer receives loop events, may be nil.
	observer TickObserver

	// mu serializes Start and Stop.
	mu sync.Mutex
	// cancel stops the running loop.
	cancel context.CancelFunc
	// done is closed when the loop released its resources.
	done chan struct{}
	// stopping is set once Stop cancelled the loop that done belongs to.
	stopping bool

	// inFlight is set while a round trip is running.
	inFlight atomic.Bool
}

// Option configures the engine.
type Option func(*Engine)

// WithTickInterval sets the time between tick starts.
func WithTickInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.tickInterval = interval
		}
	}
}

// WithStartupDelay sets the pause between camera acquisition and the ticker start.
func WithStartupDelay(delay time.Duration) Option {
	return func(e *Engine) {
		if delay >= 0 {
			e.startupDelay = delay
		}
	}
}

// WithConstraints sets the requested frame dimensions.
func WithConstraints(constraints camera.Constraints) Option {
	return func(e *Engine) {
		e.constraints = constraints
	}
}

// WithSink registers a snapshot sink.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sinks = append(e.sinks, sink)
		}
	}
}

// WithTickObserver registers a loop observer.
func WithTickObserver(observer TickObserver) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine creates a stopped engine.
func NewEngine(source camera.Source, classifier Classifier, tracker Tracker, alarm Alarm, opts ...Option) *Engine {
	e := &Engine{
		source:       source,
		classifier:   classifier,
		tracker:      tracker,
		alarm:        alarm,
		constraints:  camera.DefaultConstraints(),
		tickInterval: config.DefaultTickInterval,
		startupDelay: config.DefaultStartupDelay,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start acquires the camera and launches the loop. Starting a running engine is a no-op.
// A denied camera is reported as an error matching ErrCameraDenied and the loop never starts.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil && e.stopping {
		// An interrupted Stop left the previous loop releasing its resources.
		if err := e.awaitReleaseLocked(ctx); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
	}

	if e.done != nil {
		return nil
	}

	stream, err := e.source.Open(ctx, e.constraints)
	if err != nil {
		if errors.Is(err, camera.ErrDenied) {
			e.publish(ctx, e.tracker.CameraDenied())
			logger.ErrorKV(ctx, "Camera access denied, monitoring not started", "kind", "camera_denied", "error", err)
		}

		return fmt.Errorf("start engine: %w", err)
	}

	e.publish(ctx, e.tracker.CameraAcquired())
	logger.InfoKV(ctx, "Camera active",
		"width", e.constraints.Width,
		"height", e.constraints.Height,
		"startup_delay", e.startupDelay,
		"tick_interval", e.tickInterval)

	// The loop outlives the caller of Start, e.g. an HTTP request.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	e.cancel = cancel
	e.done = done

	go e.run(loopCtx, cancel, stream, done)

	return nil
}

// Stop cancels the loop and waits until the camera and the alarm are released.
// Stopping a stopped engine is a no-op.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done == nil {
		return
	}

	done := e.done

	e.stopping = true
	e.cancel()

	select {
	case <-done:
	case <-ctx.Done():
		// The loop clears the handles itself once it exits.
		logger.WarnKV(ctx, "Stop interrupted before the loop released its resources", "error", ctx.Err())
		return
	}

	e.detachLocked(done)
}

// Run starts the engine and keeps it running until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	e.Stop(context.WithoutCancel(ctx))

	return nil
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.done != nil
}

// Wait blocks until the running loop exits or ctx is done.
func (e *Engine) Wait(ctx context.Context) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// awaitReleaseLocked waits without holding mu until the stopping loop exits.
func (e *Engine) awaitReleaseLocked(ctx context.Context) error {
	done := e.done

	e.mu.Unlock()

	var err error

	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	e.mu.Lock()

	if err == nil {
		e.detachLocked(done)
	}

	return err
}

// detachLocked forgets the loop that done belongs to, unless a newer loop replaced it.
func (e *Engine) detachLocked(done chan struct{}) {
	if e.done != done {
		return
	}

	e.cancel()

	e.cancel = nil
	e.done = nil
	e.stopping = false
}

func (e *Engine) run(ctx context.Context, stop context.CancelFunc, stream camera.Stream, done chan struct{}) {
	var roundTrips sync.WaitGroup

	defer func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.detachLocked(done)
	}()
	defer close(done)
	defer e.release(ctx, stream)
	// Release only after the last round trip returned, so nothing is applied after Stopped.
	defer roundTrips.Wait()

	startup := time.NewTimer(e.startupDelay)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
	}

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	logger.Info(ctx, "Sampling started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, stop, stream, &roundTrips)
		}
	}
}

func (e *Engine) tick(ctx context.Context, stop context.CancelFunc, stream camera.Stream, roundTrips *sync.WaitGroup) {
	if !e.inFlight.CompareAndSwap(false, true) {
		logger.Debug(ctx, "Previous round trip still in flight, tick skipped")

		if e.observer != nil {
			e.observer.TickSkipped()
		}

		return
	}

	if e.observer != nil {
		e.observer.TickStarted()
	}

	roundTrips.Go(func() {
		defer e.inFlight.Store(false)
		defer recoverLoop(ctx, stop)

		e.roundTrip(ctx, stream)
	})
}

func (e *Engine) roundTrip(ctx context.Context, stream camera.Stream) {
	frame, err := stream.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		if e.observer != nil {
			e.observer.CaptureFailed()
		}

		logger.ErrorKV(ctx, "Frame capture failed", "kind", "capture", "error", err)

		return
	}

	started := time.Now()
	sample, err := e.classifier.Detect(ctx, frame)

	if ctx.Err() != nil {
		return
	}

	if e.observer != nil {
		e.observer.RoundTripFinished(time.Since(started), err)
	}

	var snapshot *detection.Snapshot
	if err != nil {
		snapshot = e.tracker.Fail(ctx, err)
	} else {
		snapshot = e.tracker.Apply(ctx, sample)
	}

	e.publish(ctx, snapshot)
}

// release runs on every exit path of the loop.
func (e *Engine) release(ctx context.Context, stream camera.Stream) {
	if err := stream.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to release camera", "error", err)
	}

	e.alarm.Close(ctx)

	func() {
		defer recoverLoop(ctx, func() {})

		e.publish(ctx, e.tracker.Stopped(ctx))
	}()

	logger.Info(ctx, "Sampling stopped, camera released")
}

// recoverLoop turns a panic of a sink or recorder into an error log and stops the loop,
// so the deferred release still runs.
func recoverLoop(ctx context.Context, stop context.CancelFunc) {
	r := recover()
	if r == nil {
		return
	}

	logger.ErrorKV(ctx, "Sampling loop panicked, stopping",
		"kind", "panic",
		"panic", r,
		"stack", string(debug.Stack()))

	stop()
}

func (e *Engine) publish(ctx context.Context, snapshot *detection.Snapshot) {
	for _, sink := range e.sinks {
		sink.Publish(ctx, snapshot)
	}
}
