package monitor

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

type sessionRecorder struct {
	sessions []detection.CalibrationSession
	err      error
}

func (r *sessionRecorder) CalibrationFinished(_ context.Context, session detection.CalibrationSession) error {
	r.sessions = append(r.sessions, session)
	return r.err
}

// TestService_Calibration records a finished session and resets on re-entry.
func TestService_Calibration(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(
			result{sample: &detection.Sample{EAR: 0.31, FaceBox: faceBox()}},
			result{sample: &detection.Sample{EAR: 0.35, FaceBox: faceBox()}},
		)

		var (
			ctx       = context.Background()
			recorder  = &sessionRecorder{err: errors.New("disk full")}
			published = &snapshotRecorder{}
			svc       = NewService(f.engine, f.tracker,
				WithCalibrationRecorder(recorder),
				WithServiceSink(published))
		)

		// Switching off without a session records nothing.
		svc.SetCalibration(ctx, false)
		require.Empty(t, recorder.sessions)

		snap := svc.SetCalibration(ctx, true)
		require.True(t, snap.Calibrating)
		require.True(t, published.Last().Calibrating)

		require.NoError(t, svc.Start(ctx))
		require.True(t, svc.Running())

		time.Sleep(4500 * time.Millisecond)
		synctest.Wait()

		snap = svc.SetCalibration(ctx, false)
		require.False(t, snap.Calibrating)
		require.Equal(t, 2, snap.Calibration.Count)

		require.Len(t, recorder.sessions, 1)
		session := recorder.sessions[0]
		require.Equal(t, 2, session.Stats.Count)
		require.InDelta(t, 0.33, *session.Stats.Avg, 1e-9)
		require.Equal(t, 4500*time.Millisecond, session.EndedAt.Sub(session.StartedAt))

		snap = svc.SetCalibration(ctx, true)
		require.Zero(t, snap.Calibration.Count)
		require.Nil(t, snap.Calibration.Min)

		svc.Stop(ctx)
		require.False(t, svc.Running())
		require.Equal(t, detection.StatusStopped, svc.Snapshot().Status)
	})
}

// TestService_CalibrationRestart records the running session when calibration is switched on again.
func TestService_CalibrationRestart(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(result{sample: &detection.Sample{EAR: 0.32, FaceBox: faceBox()}})

		var (
			ctx      = context.Background()
			recorder = &sessionRecorder{}
			svc      = NewService(f.engine, f.tracker, WithCalibrationRecorder(recorder))
		)

		svc.SetCalibration(ctx, true)
		require.NoError(t, svc.Start(ctx))

		time.Sleep(4500 * time.Millisecond)
		synctest.Wait()

		snap := svc.SetCalibration(ctx, true)
		require.True(t, snap.Calibrating)
		require.Zero(t, snap.Calibration.Count)

		require.Len(t, recorder.sessions, 1)
		require.Equal(t, 2, recorder.sessions[0].Stats.Count)
		require.InDelta(t, 0.32, *recorder.sessions[0].Stats.Avg, 1e-9)

		svc.Stop(ctx)

		// The restarted session is recorded on its own.
		svc.SetCalibration(ctx, false)
		require.Len(t, recorder.sessions, 2)
		require.Zero(t, recorder.sessions[1].Stats.Count)
		require.False(t, recorder.sessions[1].StartedAt.Before(recorder.sessions[0].EndedAt))
	})
}
