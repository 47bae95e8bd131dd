package monitor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/drowsy-alarm/internal/calibration"
	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/classifier"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
	"github.com/oshokin/drowsy-alarm/internal/tracker"
)

type fakeStream struct {
	captures atomic.Int32
	closed   atomic.Int32
}

func (s *fakeStream) Capture(context.Context) (camera.Frame, error) {
	seq := s.captures.Add(1)
	return camera.Frame{Data: []byte{0xff, 0xd8}, Seq: uint64(seq)}, nil
}

func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeSource struct {
	stream *fakeStream
	err    error
}

//nolint:ireturn // Source contract.
func (s *fakeSource) Open(context.Context, camera.Constraints) (camera.Stream, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.stream, nil
}

type result struct {
	sample *detection.Sample
	err    error
	delay  time.Duration
}

// scriptedClassifier replays results in order and repeats the last one.
type scriptedClassifier struct {
	mu      sync.Mutex
	results []result
	calls   int
}

func (c *scriptedClassifier) Detect(ctx context.Context, _ camera.Frame) (*detection.Sample, error) {
	c.mu.Lock()
	r := c.results[min(c.calls, len(c.results)-1)]
	c.calls++
	c.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &classifier.TransportError{Cause: ctx.Err()}
		case <-time.After(r.delay):
		}
	}

	return r.sample, r.err
}

func (c *scriptedClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

type fakeAlarm struct {
	mu     sync.Mutex
	active bool
	closed int
	// hold, when set, blocks Close until it is closed.
	hold chan struct{}
}

func (a *fakeAlarm) Activate(context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = true
}

func (a *fakeAlarm) Deactivate(context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = false
}

func (a *fakeAlarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.active
}

func (a *fakeAlarm) Close(ctx context.Context) {
	if a.hold != nil {
		<-a.hold
	}

	a.mu.Lock()
	a.closed++
	a.mu.Unlock()

	a.Deactivate(ctx)
}

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots []*detection.Snapshot
}

func (r *snapshotRecorder) Publish(_ context.Context, s *detection.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = append(r.snapshots, s)
}

func (r *snapshotRecorder) Last() *detection.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.snapshots) == 0 {
		return nil
	}

	return r.snapshots[len(r.snapshots)-1]
}

type tickCounter struct {
	started  atomic.Int32
	skipped  atomic.Int32
	finished atomic.Int32
}

func (c *tickCounter) TickStarted()                           { c.started.Add(1) }
func (c *tickCounter) TickSkipped()                           { c.skipped.Add(1) }
func (c *tickCounter) RoundTripFinished(time.Duration, error) { c.finished.Add(1) }
func (c *tickCounter) CaptureFailed()                         {}

type fixture struct {
	stream     *fakeStream
	source     *fakeSource
	classifier *scriptedClassifier
	alarm      *fakeAlarm
	sink       *snapshotRecorder
	ticks      *tickCounter
	tracker    *tracker.Tracker
	engine     *Engine
}

func newFixture(results ...result) *fixture {
	f := &fixture{
		stream:     &fakeStream{},
		classifier: &scriptedClassifier{results: results},
		alarm:      &fakeAlarm{},
		sink:       &snapshotRecorder{},
		ticks:      &tickCounter{},
	}

	f.source = &fakeSource{stream: f.stream}
	f.tracker = tracker.New(f.alarm, calibration.New())
	f.engine = NewEngine(f.source, f.classifier, f.tracker, f.alarm,
		WithSink(f.sink),
		WithTickObserver(f.ticks))

	return f
}

func faceBox() *detection.FaceBox {
	return &detection.FaceBox{Left: 180, Top: 100, Right: 460, Bottom: 400}
}

// TestEngine_EndToEnd walks through locked, drowsy, lost face and a transport failure.
func TestEngine_EndToEnd(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

		f := newFixture(
			result{sample: &detection.Sample{EAR: 0.34, FaceBox: faceBox()}},
			result{sample: &detection.Sample{EAR: 0.18, IsDrowsy: true, DrowsyScore: 80, FaceBox: faceBox()}},
			result{sample: &detection.Sample{Message: "No face detected - Position face in frame"}},
			result{err: &classifier.TransportError{Cause: errors.New("connection refused")}},
			result{sample: &detection.Sample{EAR: 0.33, FaceBox: faceBox()}},
		)

		require.NoError(t, f.engine.Start(ctx))
		require.Equal(t, detection.StatusCameraActive, f.sink.Last().Status)

		// Nothing happens during the startup delay.
		time.Sleep(2500 * time.Millisecond)
		synctest.Wait()
		require.Zero(t, f.classifier.Calls())

		// First tick at 3s.
		time.Sleep(time.Second)
		synctest.Wait()

		snap := f.sink.Last()
		require.Equal(t, detection.StateLocked, snap.State)
		require.Equal(t, detection.TierAlert, snap.Tier)
		require.False(t, snap.AlarmActive)

		time.Sleep(time.Second)
		synctest.Wait()

		snap = f.sink.Last()
		require.Equal(t, detection.StateDrowsy, snap.State)
		require.True(t, snap.AlarmActive)
		require.True(t, f.alarm.Active())

		time.Sleep(time.Second)
		synctest.Wait()

		snap = f.sink.Last()
		require.Equal(t, detection.StateSearching, snap.State)
		require.False(t, snap.AlarmActive)
		require.Zero(t, snap.DrowsyScore)

		time.Sleep(time.Second)
		synctest.Wait()

		snap = f.sink.Last()
		require.Equal(t, detection.StateSearching, snap.State)
		require.Equal(t, detection.StatusConnectionError, snap.Status)
		require.Len(t, logs.FilterMessage("Classifier round trip failed").All(), 1)

		// The next tick still fires on schedule.
		time.Sleep(time.Second)
		synctest.Wait()

		require.Equal(t, 5, f.classifier.Calls())
		require.Equal(t, detection.StateLocked, f.sink.Last().State)

		f.engine.Stop(ctx)
		require.False(t, f.engine.Running())
		require.Equal(t, detection.StatusStopped, f.sink.Last().Status)
	})
}

// TestEngine_CameraDenied never starts the loop.
func TestEngine_CameraDenied(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{}})
		f.source.err = camera.ErrDenied

		err := f.engine.Start(context.Background())
		require.ErrorIs(t, err, ErrCameraDenied)
		require.False(t, f.engine.Running())
		require.Equal(t, detection.StatusCameraDenied, f.sink.Last().Status)

		time.Sleep(10 * time.Second)
		synctest.Wait()
		require.Zero(t, f.classifier.Calls())
	})
}

// TestEngine_SkipsTicksWhileInFlight keeps at most one round trip running.
func TestEngine_SkipsTicksWhileInFlight(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(
			result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}, delay: 2500 * time.Millisecond},
			result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}},
		)

		require.NoError(t, f.engine.Start(context.Background()))

		// Ticks at 3s (slow round trip until 5.5s), 4s and 5s skipped, 6s runs.
		time.Sleep(6500 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, 2, f.classifier.Calls())
		require.Equal(t, int32(2), f.ticks.started.Load())
		require.Equal(t, int32(2), f.ticks.skipped.Load())
		require.Equal(t, int32(2), f.ticks.finished.Load())

		f.engine.Stop(context.Background())
	})
}

// TestEngine_StopReleasesEverything stops mid-episode and checks the releases.
func TestEngine_StopReleasesEverything(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{IsDrowsy: true, FaceBox: faceBox()}})

		require.NoError(t, f.engine.Start(context.Background()))
		require.NoError(t, f.engine.Start(context.Background()))

		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()
		require.True(t, f.alarm.Active())

		f.engine.Stop(context.Background())
		f.engine.Stop(context.Background())

		require.False(t, f.alarm.Active())
		require.Equal(t, 1, f.alarm.closed)
		require.Equal(t, int32(1), f.stream.closed.Load())

		calls := f.classifier.Calls()

		time.Sleep(5 * time.Second)
		synctest.Wait()
		require.Equal(t, calls, f.classifier.Calls())

		// The engine can be started again.
		require.NoError(t, f.engine.Start(context.Background()))
		require.True(t, f.engine.Running())
		f.engine.Stop(context.Background())
	})
}

// TestEngine_StopDuringRoundTrip discards the cancelled result.
func TestEngine_StopDuringRoundTrip(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{IsDrowsy: true, FaceBox: faceBox()}, delay: time.Hour})

		require.NoError(t, f.engine.Start(context.Background()))

		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 1, f.classifier.Calls())

		f.engine.Stop(context.Background())

		require.Equal(t, detection.StatusStopped, f.sink.Last().Status)
		require.False(t, f.alarm.Active())
		require.Zero(t, f.ticks.finished.Load())
	})
}

// TestEngine_RunStopsOnCancel releases resources when the parent context ends.
func TestEngine_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}})

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)

		go func() {
			errCh <- f.engine.Run(ctx)
		}()

		time.Sleep(4500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 2, f.classifier.Calls())

		cancel()
		require.NoError(t, <-errCh)
		require.False(t, f.engine.Running())
		require.Equal(t, int32(1), f.stream.closed.Load())
		require.Equal(t, 1, f.alarm.closed)
	})
}

// panickingSink panics on the first locked snapshot.
type panickingSink struct {
	panicked atomic.Bool
}

func (s *panickingSink) Publish(_ context.Context, snapshot *detection.Snapshot) {
	if snapshot.State == detection.StateLocked && !s.panicked.Swap(true) {
		panic("sink failure")
	}
}

// TestEngine_RestartAfterInterruptedStop restarts an engine whose Stop gave up waiting.
func TestEngine_RestartAfterInterruptedStop(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}})
		f.alarm.hold = make(chan struct{})

		require.NoError(t, f.engine.Start(context.Background()))

		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 1, f.classifier.Calls())

		stopCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		f.engine.Stop(stopCtx)
		cancel()

		// The loop is still releasing the alarm.
		require.True(t, f.engine.Running())

		started := make(chan error, 1)

		go func() {
			started <- f.engine.Start(context.Background())
		}()

		synctest.Wait()
		require.Empty(t, started)

		close(f.alarm.hold)

		require.NoError(t, <-started)
		require.True(t, f.engine.Running())
		require.Equal(t, int32(1), f.stream.closed.Load())
		require.Equal(t, detection.StatusCameraActive, f.sink.Last().Status)

		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 2, f.classifier.Calls())

		f.engine.Stop(context.Background())
		require.False(t, f.engine.Running())
		require.Equal(t, int32(2), f.stream.closed.Load())
	})
}

// TestEngine_LoopExitClearsHandles reports a stopped engine once an interrupted Stop completes.
func TestEngine_LoopExitClearsHandles(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}})
		f.alarm.hold = make(chan struct{})

		require.NoError(t, f.engine.Start(context.Background()))

		stopCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		f.engine.Stop(stopCtx)
		cancel()

		close(f.alarm.hold)
		synctest.Wait()

		require.False(t, f.engine.Running())
		require.Equal(t, detection.StatusStopped, f.sink.Last().Status)

		require.NoError(t, f.engine.Start(context.Background()))
		require.True(t, f.engine.Running())

		f.engine.Stop(context.Background())
	})
}

// TestEngine_PanicReleasesResources stops the loop and releases the devices when a sink panics.
func TestEngine_PanicReleasesResources(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}})
		f.engine = NewEngine(f.source, f.classifier, f.tracker, f.alarm,
			WithSink(f.sink),
			WithSink(&panickingSink{}))

		core, logs := observer.New(zapcore.ErrorLevel)
		ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

		require.NoError(t, f.engine.Start(ctx))

		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()

		require.False(t, f.engine.Running())
		require.Equal(t, int32(1), f.stream.closed.Load())
		require.Equal(t, 1, f.alarm.closed)
		require.Equal(t, detection.StatusStopped, f.sink.Last().Status)
		require.Equal(t, 1, logs.FilterMessage("Sampling loop panicked, stopping").Len())

		calls := f.classifier.Calls()

		time.Sleep(5 * time.Second)
		synctest.Wait()
		require.Equal(t, calls, f.classifier.Calls())
	})
}

// TestEngine_CommandCameraDenied never starts the loop when the capture command fails on the device.
func TestEngine_CommandCameraDenied(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("relies on the POSIX shell")
	}

	f := newFixture(result{sample: &detection.Sample{EAR: 0.3, FaceBox: faceBox()}})
	source := camera.NewCommandSource([]string{"sh", "-c", "echo '/dev/video0: Permission denied' >&2; exit 1"})
	f.engine = NewEngine(source, f.classifier, f.tracker, f.alarm,
		WithSink(f.sink),
		WithStartupDelay(0),
		WithTickInterval(10*time.Millisecond))

	err := f.engine.Start(context.Background())
	require.ErrorIs(t, err, ErrCameraDenied)
	require.False(t, f.engine.Running())

	snapshot := f.sink.Last()
	require.Equal(t, detection.StatusCameraDenied, snapshot.Status)
	require.False(t, snapshot.CameraActive)

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, f.classifier.Calls())
}
