package alarm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsy-alarm/internal/audio"
)

type fakeOutput struct {
	plays  atomic.Int32
	closed atomic.Int32
}

func (o *fakeOutput) Play(ctx context.Context, burst audio.Burst) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(burst.Duration()):
	}

	o.plays.Add(1)

	return nil
}

func (o *fakeOutput) Close() error {
	o.closed.Add(1)
	return nil
}

type fakeObserver struct {
	activated   atomic.Int32
	deactivated atomic.Int32
	bursts      atomic.Int32
	unavailable atomic.Int32
}

func (o *fakeObserver) AlarmActivated()   { o.activated.Add(1) }
func (o *fakeObserver) AlarmDeactivated() { o.deactivated.Add(1) }
func (o *fakeObserver) BurstPlayed()      { o.bursts.Add(1) }
func (o *fakeObserver) AudioUnavailable() { o.unavailable.Add(1) }

func countingOpener(output *fakeOutput, opens *atomic.Int32) audio.OpenerFunc {
	return func(context.Context) (audio.Output, error) {
		opens.Add(1)
		return output, nil
	}
}

// TestActuator_ActivateIsIdempotent checks that repeated activations share one burst loop.
func TestActuator_ActivateIsIdempotent(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx      = context.Background()
			output   = &fakeOutput{}
			opens    atomic.Int32
			observer = &fakeObserver{}
			a        = NewActuator(countingOpener(output, &opens), WithObserver(observer))
		)

		a.Activate(ctx)
		a.Activate(ctx)
		a.Activate(ctx)
		require.True(t, a.Active())

		// Bursts start at 0, 800ms and 1600ms; each takes 500ms.
		time.Sleep(2200 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, int32(1), opens.Load())
		require.Equal(t, int32(3), output.plays.Load())
		require.Equal(t, int32(1), observer.activated.Load())
		require.Equal(t, int32(3), observer.bursts.Load())

		a.Deactivate(ctx)
		require.False(t, a.Active())
		require.Equal(t, int32(1), output.closed.Load())
		require.Equal(t, int32(1), observer.deactivated.Load())

		// No burst is played after deactivation returns.
		time.Sleep(5 * time.Second)
		synctest.Wait()
		require.Equal(t, int32(3), output.plays.Load())
	})
}

// TestActuator_DeactivateWhenInactive is a no-op.
func TestActuator_DeactivateWhenInactive(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := &fakeObserver{}
		a := NewActuator(nil, WithObserver(observer))

		a.Deactivate(context.Background())
		a.Close(context.Background())

		require.False(t, a.Active())
		require.Zero(t, observer.deactivated.Load())
	})
}

// TestActuator_DeactivateMidBurst cancels the running burst.
func TestActuator_DeactivateMidBurst(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx    = context.Background()
			output = &fakeOutput{}
			opens  atomic.Int32
			a      = NewActuator(countingOpener(output, &opens))
		)

		a.Activate(ctx)
		time.Sleep(100 * time.Millisecond)

		a.Deactivate(ctx)
		require.Zero(t, output.plays.Load())
		require.Equal(t, int32(1), output.closed.Load())
	})
}

// TestActuator_Reactivate opens a fresh output per episode.
func TestActuator_Reactivate(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx    = context.Background()
			output = &fakeOutput{}
			opens  atomic.Int32
			a      = NewActuator(countingOpener(output, &opens), WithInterval(time.Second))
		)

		a.Activate(ctx)
		a.Deactivate(ctx)
		a.Activate(ctx)
		time.Sleep(600 * time.Millisecond)
		synctest.Wait()
		a.Deactivate(ctx)

		require.Equal(t, int32(2), opens.Load())
		require.Equal(t, int32(2), output.closed.Load())
		require.Equal(t, int32(1), output.plays.Load())
	})
}

// TestActuator_AudioUnavailable keeps the alarm logically active without sound.
func TestActuator_AudioUnavailable(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx      = context.Background()
			observer = &fakeObserver{}
			opens    atomic.Int32
			failing  = audio.OpenerFunc(func(context.Context) (audio.Output, error) {
				opens.Add(1)
				return nil, errors.Join(audio.ErrUnavailable, errors.New("no device"))
			})
			a = NewActuator(failing, WithObserver(observer))
		)

		a.Activate(ctx)
		time.Sleep(3 * time.Second)
		synctest.Wait()

		require.True(t, a.Active())
		require.Equal(t, int32(1), opens.Load())
		require.Equal(t, int32(1), observer.unavailable.Load())

		// Still active: a second activation in the same episode does not retry.
		a.Activate(ctx)
		synctest.Wait()
		require.Equal(t, int32(1), opens.Load())

		a.Deactivate(ctx)
		require.False(t, a.Active())
	})
}

// TestActuator_VisualOnly runs without an opener.
func TestActuator_VisualOnly(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := &fakeObserver{}
		a := NewActuator(nil, WithObserver(observer))

		a.Activate(context.Background())
		synctest.Wait()

		require.True(t, a.Active())
		require.Equal(t, int32(1), observer.unavailable.Load())

		a.Close(context.Background())
		require.False(t, a.Active())
	})
}
