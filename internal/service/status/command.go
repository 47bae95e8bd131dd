package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/console"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
	"github.com/oshokin/drowsy-alarm/internal/service/client"
	"github.com/oshokin/drowsy-alarm/internal/service/common"
)

// Options controls the status polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ControlAddress provides an optional control API address override.
	ControlAddress string
	// Watch keeps polling until canceled.
	Watch bool
	// PollInterval defines the interval between snapshot checks.
	PollInterval time.Duration
	// Out receives the rendered snapshots, defaults to stdout.
	Out io.Writer
}

// DefaultPollInterval defines the polling interval for snapshot checks.
const DefaultPollInterval = 1 * time.Second

// Run prints the current snapshot and, in watch mode, every change until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "drowsy-status")

	settings, err := client.LoadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	// Determine control address: command line argument overrides config.
	controlAddress := settings.ControlAddress
	if opts.ControlAddress != "" {
		controlAddress = opts.ControlAddress
	}

	// Establish gRPC connection with timeout from configuration.
	conn, err := common.Dial(ctx, controlAddress, common.WithCallTimeout(settings.Timeout))
	if err != nil {
		return fmt.Errorf("dial monitor: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = conn.Close()
	}()

	snapshot, err := conn.Status(ctx)
	if err != nil {
		return err
	}

	renderer := console.NewRenderer(opts.Out)

	if !opts.Watch {
		_, err = fmt.Fprintln(opts.Out, renderer.Panel(snapshot))
		return err
	}

	logger.InfoKV(ctx, "Watching monitor status", "control_address", controlAddress, "interval", opts.PollInterval.String())

	sink := console.NewSink(opts.Out)
	sink.Publish(ctx, stamped(snapshot))

	// Setup polling ticker with fixed interval.
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
			if snapshot, err = conn.Status(ctx); err != nil {
				logger.ErrorKV(ctx, "Status request failed", "error", err)
				continue
			}

			sink.Publish(ctx, stamped(snapshot))
		}
	}
}

// stamped fills a missing update time so the printed line carries the poll time.
func stamped(snapshot *detection.Snapshot) *detection.Snapshot {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now()
	}

	return snapshot
}
