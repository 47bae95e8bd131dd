package alarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/audio"
	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// Observer is notified about actuator lifecycle events. Metrics implement it.
type Observer interface {
	AlarmActivated()
	AlarmDeactivated()
	BurstPlayed()
	AudioUnavailable()
}

// Actuator emits a tone burst immediately on activation and then one every
// interval until deactivated.
type Actuator struct {
	// opener creates the audio output for each activation.
	opener audio.Opener
	// burst is the tone played on every period.
	burst audio.Burst
	// interval is the period between burst starts.
	interval time.Duration
	// observer receives lifecycle events, may be nil.
	observer Observer

	// mu guards active, cancel, done and last.
	mu sync.Mutex
	// active is the authoritative alarm flag.
	active bool
	// cancel stops the running burst loop.
	cancel context.CancelFunc
	// done is closed when the burst loop exits.
	done chan struct{}
	// last is the done channel of the most recently started loop, so a new
	// loop can wait for a canceled predecessor to release the audio output.
	last chan struct{}
}

// Option configures the actuator.
type Option func(*Actuator)

// WithInterval sets the period between bursts.
func WithInterval(interval time.Duration) Option {
	return func(a *Actuator) {
		if interval > 0 {
			a.interval = interval
		}
	}
}

// WithBurst replaces the default alarm burst.
func WithBurst(burst audio.Burst) Option {
	return func(a *Actuator) {
		a.burst = burst
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(a *Actuator) {
		a.observer = observer
	}
}

// NewActuator creates an inactive actuator. A nil opener makes the alarm visual-only.
func NewActuator(opener audio.Opener, opts ...Option) *Actuator {
	a := &Actuator{
		opener:   opener,
		burst:    audio.AlarmBurst(),
		interval: config.DefaultAlarmInterval,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Activate starts the burst loop unless it is already running.
// It never blocks: the audio output is opened by the loop goroutine.
func (a *Actuator) Activate(ctx context.Context) {
	a.mu.Lock()

	if a.active {
		a.mu.Unlock()
		return
	}

	// The loop must outlive the tick that triggered it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	previous := a.last

	a.active = true
	a.cancel = cancel
	a.done = done
	a.last = done

	a.mu.Unlock()

	if a.observer != nil {
		a.observer.AlarmActivated()
	}

	logger.Warn(ctx, "Alarm activated")

	go a.loop(loopCtx, previous, done)
}

// Deactivate stops the burst loop and waits for it to exit. It is a no-op when inactive.
func (a *Actuator) Deactivate(ctx context.Context) {
	a.mu.Lock()

	if !a.active {
		a.mu.Unlock()
		return
	}

	cancel, done := a.cancel, a.done

	a.active = false
	a.cancel = nil
	a.done = nil

	a.mu.Unlock()

	cancel()
	<-done

	if a.observer != nil {
		a.observer.AlarmDeactivated()
	}

	logger.Info(ctx, "Alarm deactivated")
}

// Active reports the authoritative alarm flag.
func (a *Actuator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.active
}

// Close unconditionally deactivates the alarm. Used on engine shutdown.
func (a *Actuator) Close(ctx context.Context) {
	a.Deactivate(ctx)
}

// loop owns the audio output for one activation.
func (a *Actuator) loop(ctx context.Context, previous <-chan struct{}, done chan struct{}) {
	defer close(done)

	if previous != nil {
		<-previous
	}

	if a.opener == nil {
		a.audioUnavailable(ctx, audio.ErrUnavailable)
		return
	}

	output, err := a.opener.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.audioUnavailable(ctx, err)
		}

		return
	}

	defer func() {
		if closeErr := output.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to release audio output", "error", closeErr)
		}
	}()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.play(ctx, output)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.play(ctx, output)
		}
	}
}

func (a *Actuator) play(ctx context.Context, output audio.Output) {
	err := output.Play(ctx, a.burst)

	switch {
	case err == nil:
		if a.observer != nil {
			a.observer.BurstPlayed()
		}
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		// Deactivated mid-burst.
	default:
		logger.WarnKV(ctx, "Tone burst failed", "error", err)
	}
}

func (a *Actuator) audioUnavailable(ctx context.Context, err error) {
	if a.observer != nil {
		a.observer.AudioUnavailable()
	}

	logger.ErrorKV(ctx, "Audio output unavailable, alarm is visual-only", "kind", "audio_unavailable", "error", err)
}
