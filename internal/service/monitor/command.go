package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/oshokin/drowsy-alarm/internal/alarm"
	"github.com/oshokin/drowsy-alarm/internal/api/grpc/control"
	"github.com/oshokin/drowsy-alarm/internal/api/rest"
	"github.com/oshokin/drowsy-alarm/internal/audio"
	"github.com/oshokin/drowsy-alarm/internal/calibration"
	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/classifier"
	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/console"
	"github.com/oshokin/drowsy-alarm/internal/events"
	"github.com/oshokin/drowsy-alarm/internal/journal"
	"github.com/oshokin/drowsy-alarm/internal/logger"
	"github.com/oshokin/drowsy-alarm/internal/metrics"
	engine "github.com/oshokin/drowsy-alarm/internal/monitor"
	"github.com/oshokin/drowsy-alarm/internal/repository/baseline"
	"github.com/oshokin/drowsy-alarm/internal/service/instance"
	"github.com/oshokin/drowsy-alarm/internal/tracker"
	"github.com/oshokin/drowsy-alarm/internal/version"
)

// Options controls the drowsy-monitor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ClassifierURL overrides the classifier base URL.
	ClassifierURL string
	// ListenAddress overrides the HTTP presentation API address.
	ListenAddress string
	// ControlAddress overrides the gRPC control API address.
	ControlAddress string
	// LogLevel overrides the configured log level.
	LogLevel string
	// Mute turns the alarm into a visual-only indicator.
	Mute bool
	// Calibrate starts the monitor in calibration mode.
	Calibrate bool
	// Idle waits for a start request instead of acquiring the camera immediately.
	Idle bool
	// Replace terminates a monitor that is already running.
	Replace bool
	// Quiet disables the console status line.
	Quiet bool
}

// Run starts the monitor and blocks until ctx is canceled or a server fails.
// Loads configuration first, then builds the pipeline bottom-up.
//
//nolint:funlen,cyclop // Linear wiring reads best in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "drowsy-monitor")

	// Load configuration and apply command line overrides.
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	if settings.LogLevel != "" {
		if err = logger.Configure(settings.LogLevel); err != nil {
			return fmt.Errorf("configure logger: %w", err)
		}
	}

	// Keep one monitor per marker file.
	guard, err := instance.Acquire(ctx, settings.MarkerFile, opts.Replace)
	if err != nil {
		return fmt.Errorf("acquire instance marker: %w", err)
	}

	defer func() {
		if releaseErr := guard.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Failed to release instance marker", "error", releaseErr)
		}
	}()

	m := metrics.New()

	// Create the classifier client and probe it; an unreachable classifier is not fatal.
	classifierClient, err := classifier.New(settings.ClassifierURL, classifier.WithTimeout(settings.Timeout))
	if err != nil {
		return fmt.Errorf("create classifier client: %w", err)
	}

	probeClassifier(ctx, classifierClient)

	source, err := camera.New(settings.Camera)
	if err != nil {
		return fmt.Errorf("create camera source: %w", err)
	}

	// A nil opener makes the alarm visual-only.
	var opener audio.Opener
	if !settings.Audio.Disabled && !opts.Mute {
		opener = audio.NewCommandOpener(settings.Audio.Player, settings.Audio.SampleRate)
	}

	actuator := alarm.NewActuator(opener,
		alarm.WithInterval(settings.AlarmInterval),
		alarm.WithObserver(m))

	// Restore the last calibration baseline so it stays visible after a restart.
	aggregator := calibration.New()
	baselineRepo := baseline.NewFileRepository(settings.BaselineFile)
	restoreBaseline(ctx, baselineRepo, aggregator)

	trackerOptions := []tracker.Option{
		tracker.WithObserver(m),
		tracker.WithRecorder(m),
		tracker.WithSampleTrace(settings.SampleTrace),
	}

	serviceOptions := []engine.ServiceOption{
		engine.WithCalibrationRecorder(baselineRepo),
	}

	// Attach the optional episode journal.
	var episodes rest.EpisodeLister

	if settings.JournalDSN != "" {
		j, openErr := journal.Open(ctx, settings.JournalDSN)
		if openErr != nil {
			return fmt.Errorf("open journal: %w", openErr)
		}

		defer closeQuietly(ctx, "journal", j)

		episodes = j
		trackerOptions = append(trackerOptions, tracker.WithRecorder(j))
		serviceOptions = append(serviceOptions, engine.WithCalibrationRecorder(j))
	}

	// Attach the optional Kafka event publisher.
	if len(settings.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(events.NewWriter(ctx, settings.Kafka), "")
		defer closeQuietly(ctx, "event publisher", publisher)

		trackerOptions = append(trackerOptions, tracker.WithRecorder(publisher))
		serviceOptions = append(serviceOptions, engine.WithCalibrationRecorder(publisher))
	}

	stateTracker := tracker.New(actuator, aggregator, trackerOptions...)

	// Snapshot sinks: the WebSocket hub and, unless quiet, the console.
	hub := rest.NewHub()
	engineOptions := []engine.Option{
		engine.WithTickInterval(settings.TickInterval),
		engine.WithStartupDelay(settings.StartupDelay),
		engine.WithConstraints(camera.Constraints{Width: settings.Camera.Width, Height: settings.Camera.Height}),
		engine.WithSink(hub),
		engine.WithTickObserver(m),
	}

	serviceOptions = append(serviceOptions, engine.WithServiceSink(hub))

	if !opts.Quiet {
		sink := console.NewSink(os.Stdout)
		engineOptions = append(engineOptions, engine.WithSink(sink))
		serviceOptions = append(serviceOptions, engine.WithServiceSink(sink))
	}

	sampler := engine.NewEngine(source, classifierClient, stateTracker, actuator, engineOptions...)
	svc := engine.NewService(sampler, stateTracker, serviceOptions...)

	if opts.Calibrate {
		svc.SetCalibration(ctx, true)
	}

	// Start sampling unless asked to wait for a start request.
	// A denied camera is reported through the snapshot and can be retried over the APIs.
	if !opts.Idle {
		err = svc.Start(ctx)

		switch {
		case err == nil:
		case errors.Is(err, engine.ErrCameraDenied):
			logger.Warn(ctx, "Waiting for a start request")
		default:
			return fmt.Errorf("start engine: %w", err)
		}
	}

	logger.InfoKV(ctx, "Drowsy monitor started",
		"classifier_url", classifierClient.BaseURL(),
		"listen_address", settings.ListenAddress,
		"control_address", settings.ControlAddress,
		"audio", opener != nil,
		"version", version.Short())

	err = serve(ctx, settings, svc, hub, episodes, m)

	// Release the camera and the alarm before returning.
	svc.Stop(context.WithoutCancel(ctx))

	logger.Info(ctx, "Drowsy monitor stopped")

	return err
}

// serve runs the HTTP and gRPC servers until ctx is done or one of them fails.
func serve(
	ctx context.Context,
	settings *config.Config,
	svc *engine.Service,
	hub *rest.Hub,
	episodes rest.EpisodeLister,
	m *metrics.Metrics,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	restOptions := []rest.Option{rest.WithHub(hub), rest.WithMetrics(m)}
	if episodes != nil {
		restOptions = append(restOptions, rest.WithEpisodes(episodes))
	}

	var (
		httpServer    = rest.NewServer(svc, restOptions...)
		controlServer = control.NewServer(svc)
		wg            sync.WaitGroup
		mu            sync.Mutex
		errs          []error
	)

	run := func(name string, fn func(context.Context) error) {
		wg.Go(func() {
			if runErr := fn(ctx); runErr != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, runErr))
				mu.Unlock()
			}

			// One server going down takes the other one with it.
			cancel()
		})
	}

	run("http server", func(ctx context.Context) error {
		return httpServer.Run(ctx, settings.ListenAddress)
	})

	run("control server", func(ctx context.Context) error {
		return controlServer.Run(ctx, settings.ControlAddress)
	})

	wg.Wait()

	return errors.Join(errs...)
}

// loadSettings reads the configuration and applies command line overrides.
func loadSettings(opts *Options) (*config.Config, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.ClassifierURL != "" {
		settings.ClassifierURL = opts.ClassifierURL
	}

	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.ControlAddress != "" {
		settings.ControlAddress = opts.ControlAddress
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	// Overrides must pass the same checks as the file.
	if err = config.Validate(settings); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return settings, nil
}

func probeClassifier(ctx context.Context, client *classifier.Client) {
	probeCtx, cancel := context.WithTimeout(ctx, config.DefaultTimeout)
	defer cancel()

	if err := client.Health(probeCtx); err != nil {
		logger.WarnKV(ctx, "Classifier health check failed, continuing", "classifier_url", client.BaseURL(), "error", err)
		return
	}

	logger.InfoKV(ctx, "Classifier is healthy", "classifier_url", client.BaseURL())
}

func restoreBaseline(ctx context.Context, repo baseline.Repository, aggregator *calibration.Aggregator) {
	session, err := repo.Load(ctx)

	switch {
	case err == nil:
		aggregator.Restore(session.Stats)
		logger.InfoKV(ctx, "Calibration baseline restored", "count", session.Stats.Count, "ended_at", session.EndedAt)
	case errors.Is(err, baseline.ErrNotFound):
		logger.Debug(ctx, "No calibration baseline yet")
	default:
		logger.WarnKV(ctx, "Failed to load calibration baseline", "error", err)
	}
}

func closeQuietly(ctx context.Context, name string, closer io.Closer) {
	if err := closer.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close "+name, "error", err)
	}
}
