package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/console"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
	"github.com/oshokin/drowsy-alarm/internal/service/common"
)

// Action is a state change requested from the monitor.
type Action string

// Supported actions.
const (
	ActionCalibrationOn  Action = "calibration-on"
	ActionCalibrationOff Action = "calibration-off"
	ActionEngineStart    Action = "engine-start"
	ActionEngineStop     Action = "engine-stop"
)

// Options configures the control client behavior.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ControlAddress overrides the control address from config when specified.
	ControlAddress string
	// Action is the requested state change.
	Action Action
	// RetryInterval is the delay between two attempts.
	RetryInterval time.Duration
	// Out receives the resulting snapshot, defaults to stdout.
	Out io.Writer
}

// DefaultRetryInterval defines the retry delay when pushing a request to the monitor.
const DefaultRetryInterval = 1 * time.Second

// errUnknownAction is returned for an unsupported action.
var errUnknownAction = errors.New("unknown action")

// Run attempts the action with retry logic until the monitor confirms it or ctx is canceled.
// A denied camera is final and is not retried.
//
//nolint:cyclop // Retry loop mirrors the single attempt.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "drowsy-"+string(opts.Action))

	request, err := requestFor(opts.Action)
	if err != nil {
		return err
	}

	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	// Load settings; a missing file falls back to defaults.
	settings, err := LoadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	controlAddress := settings.ControlAddress
	if opts.ControlAddress != "" {
		controlAddress = opts.ControlAddress
	}

	// Identify current user and hostname for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	// Connect to the monitor with timeout from config.
	client, err := common.Dial(ctx, controlAddress,
		common.WithCallTimeout(settings.Timeout),
		common.WithActor(actor))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Pushing request to monitor", "control_address", controlAddress, "action", opts.Action)

	// attempt tries once, returns (completed, error).
	attempt := func() (bool, error) {
		snapshot, err := request(ctx, client)
		if err != nil {
			if status.Code(err) == codes.PermissionDenied {
				return false, fmt.Errorf("monitor refused: %w", err)
			}

			// Log error but continue retrying for transient failures.
			logger.ErrorKV(ctx, "Control request failed", "action", opts.Action, "error", err)

			return false, nil
		}

		if !confirmed(opts.Action, snapshot) {
			return false, nil
		}

		_, err = fmt.Fprintln(opts.Out, console.NewRenderer(opts.Out).Panel(snapshot))

		return true, err
	}

	// Attempt immediately before starting retry loop.
	if done, err := attempt(); err != nil || done {
		return err
	}

	// Setup retry timer for subsequent attempts.
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := attempt()
			if err != nil || done {
				return err
			}
		}
	}
}

// LoadSettings reads the configuration. A missing file yields the defaults,
// since control commands often run without the monitor's settings.
func LoadSettings(path string) (*config.Config, error) {
	settings, err := config.Load(path)
	if err == nil {
		return settings, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return &config.Config{
		Timeout:        config.DefaultTimeout,
		ControlAddress: config.DefaultControlAddress,
	}, nil
}

type request func(ctx context.Context, client *common.Client) (*detection.Snapshot, error)

func requestFor(action Action) (request, error) {
	switch action {
	case ActionCalibrationOn, ActionCalibrationOff:
		on := action == ActionCalibrationOn

		return func(ctx context.Context, client *common.Client) (*detection.Snapshot, error) {
			return client.SetCalibration(ctx, on)
		}, nil
	case ActionEngineStart:
		return func(ctx context.Context, client *common.Client) (*detection.Snapshot, error) {
			return client.StartEngine(ctx)
		}, nil
	case ActionEngineStop:
		return func(ctx context.Context, client *common.Client) (*detection.Snapshot, error) {
			return client.StopEngine(ctx)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAction, action)
	}
}

// confirmed reports whether the snapshot reflects the requested action.
func confirmed(action Action, snapshot *detection.Snapshot) bool {
	switch action {
	case ActionCalibrationOn:
		return snapshot.Calibrating
	case ActionCalibrationOff:
		return !snapshot.Calibrating
	case ActionEngineStart:
		return snapshot.CameraActive
	case ActionEngineStop:
		return !snapshot.CameraActive
	default:
		return false
	}
}
