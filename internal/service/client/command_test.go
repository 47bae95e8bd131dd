package client

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// TestConfirmed maps each action to the snapshot flag it waits for.
func TestConfirmed(t *testing.T) {
	t.Parallel()

	on := &detection.Snapshot{Calibrating: true, CameraActive: true}
	off := &detection.Snapshot{}

	require.True(t, confirmed(ActionCalibrationOn, on))
	require.False(t, confirmed(ActionCalibrationOn, off))
	require.True(t, confirmed(ActionCalibrationOff, off))
	require.True(t, confirmed(ActionEngineStart, on))
	require.True(t, confirmed(ActionEngineStop, off))
	require.False(t, confirmed(Action("reboot"), on))
}

// TestRun_UnknownAction fails before dialing.
func TestRun_UnknownAction(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{Action: "reboot"})
	require.ErrorIs(t, err, errUnknownAction)
}

// TestLoadSettings_MissingFile falls back to defaults.
func TestLoadSettings_MissingFile(t *testing.T) {
	t.Parallel()

	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.DefaultControlAddress, settings.ControlAddress)
	require.Equal(t, config.DefaultTimeout, settings.Timeout)
}
