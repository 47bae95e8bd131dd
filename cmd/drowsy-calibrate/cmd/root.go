package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/service/client"
	"github.com/oshokin/drowsy-alarm/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// controlAddress overrides the monitor control address.
	controlAddress string

	// errInvalidMode is returned for a mode other than on or off.
	errInvalidMode = errors.New("mode must be on or off")

	// rootCmd represents the base command for toggling calibration mode.
	rootCmd = &cobra.Command{
		Use:   "drowsy-calibrate on|off",
		Short: "Toggle calibration mode on a running monitor.",
		Long: `Switches calibration mode on the running drowsy-monitor.

While calibration is on, the monitor collects min/max/average eye aspect ratio
for the subject. Switching it off stores the session as the new baseline.
The request is retried until the monitor confirms it.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var action client.Action

			switch args[0] {
			case "on":
				action = client.ActionCalibrationOn
			case "off":
				action = client.ActionCalibrationOff
			default:
				return fmt.Errorf("%w: %q", errInvalidMode, args[0])
			}

			return client.Run(ctx, &client.Options{
				ConfigPath:     cfgPath,
				ControlAddress: controlAddress,
				Action:         action,
			})
		},
	}
)

// Execute runs the drowsy-calibrate CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&controlAddress, "address", "a", "", "monitor control address override")
}
