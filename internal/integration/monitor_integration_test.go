package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsy-alarm/internal/api/view"
	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/repository/baseline"
	"github.com/oshokin/drowsy-alarm/internal/service/client"
	"github.com/oshokin/drowsy-alarm/internal/service/common"
	"github.com/oshokin/drowsy-alarm/internal/service/monitor"
	"github.com/oshokin/drowsy-alarm/internal/service/status"
)

// monitorFixture is a running drowsy-monitor with its collaborators.
type monitorFixture struct {
	classifier     *fakeClassifier
	httpAddress    string
	controlAddress string
	baselineFile   string
	markerFile     string
	cfgPath        string
	cancel         context.CancelFunc
	done           chan error
}

// startMonitor runs the real monitor against a fake classifier and a frame folder.
func startMonitor(t *testing.T) *monitorFixture {
	t.Helper()

	var (
		dir = t.TempDir()
		f   = &monitorFixture{
			classifier:     new(fakeClassifier),
			httpAddress:    reservePort(t),
			controlAddress: reservePort(t),
			baselineFile:   filepath.Join(dir, "baseline.json"),
			markerFile:     filepath.Join(dir, "monitor.pid"),
			cfgPath:        filepath.Join(dir, "settings.yaml"),
			done:           make(chan error, 1),
		}
	)

	// Create temporary configuration file.
	require.NoError(t, config.Save(f.cfgPath, &config.Config{
		ClassifierURL:  f.classifier.start(t),
		Timeout:        2 * time.Second,
		TickInterval:   40 * time.Millisecond,
		StartupDelay:   10 * time.Millisecond,
		AlarmInterval:  100 * time.Millisecond,
		Camera:         config.Camera{Source: config.CameraSourceDirectory, Path: writeFrames(t)},
		Audio:          config.Audio{Disabled: true},
		ListenAddress:  f.httpAddress,
		ControlAddress: f.controlAddress,
		BaselineFile:   f.baselineFile,
		MarkerFile:     f.markerFile,
		JournalDSN:     filepath.Join(dir, "journal.db"),
		LogLevel:       "warn",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	// Start monitor in background goroutine.
	go func() {
		f.done <- monitor.Run(ctx, &monitor.Options{ConfigPath: f.cfgPath, Quiet: true})
	}()

	// Wait for the HTTP API to come up.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + f.httpAddress + "/health") //nolint:noctx // Test probe.
		if err != nil {
			return false
		}

		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	return f
}

// stop cancels the monitor and waits for it.
func (f *monitorFixture) stop(t *testing.T) {
	t.Helper()

	f.cancel()

	select {
	case err := <-f.done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()

	resp, err := http.Get(url) //nolint:noctx // Test helper.
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// TestMonitor_EpisodeAndCalibration drives a full drowsy episode and a calibration session.
func TestMonitor_EpisodeAndCalibration(t *testing.T) {
	t.Parallel()

	f := startMonitor(t)

	ctx := context.Background()

	c, err := common.Dial(ctx, f.controlAddress, common.WithCallTimeout(2*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	// Alert subject: the face is locked.
	require.Eventually(t, func() bool {
		snapshot, err := c.Status(ctx)
		return err == nil && snapshot.State == detection.StateLocked
	}, 5*time.Second, 20*time.Millisecond)

	// Calibrate on the open-eyes answers.
	snapshot, err := c.SetCalibration(ctx, true)
	require.NoError(t, err)
	require.True(t, snapshot.Calibrating)

	require.Eventually(t, func() bool {
		snapshot, err := c.Status(ctx)
		return err == nil && snapshot.Calibration.Count > detection.CalibrationReadyCount
	}, 5*time.Second, 20*time.Millisecond)

	snapshot, err = c.SetCalibration(ctx, false)
	require.NoError(t, err)
	require.False(t, snapshot.Calibrating)

	session, err := baseline.NewFileRepository(f.baselineFile).Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, session.Stats.Avg)
	require.InDelta(t, 0.33, *session.Stats.Avg, 1e-9)

	// Drowsy subject: the alarm goes on.
	f.classifier.drowsy.Store(true)

	var current view.Snapshot

	require.Eventually(t, func() bool {
		getJSON(t, "http://"+f.httpAddress+"/status", &current)
		return current.AlarmActive
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, detection.StatusDrowsy, current.Status)
	require.NotEmpty(t, current.Suggestions)

	// Recovery ends the episode.
	f.classifier.drowsy.Store(false)

	require.Eventually(t, func() bool {
		getJSON(t, "http://"+f.httpAddress+"/status", &current)
		return !current.AlarmActive && current.State == string(detection.StateLocked)
	}, 5*time.Second, 20*time.Millisecond)

	var episodes []view.Episode

	getJSON(t, "http://"+f.httpAddress+"/episodes", &episodes)
	require.Len(t, episodes, 1)
	require.Equal(t, string(detection.EndRecovered), episodes[0].EndReason)
	require.InDelta(t, 91, episodes[0].PeakScore, 1e-9)

	// Stop sampling over the control API: the camera is released and ticks stop.
	snapshot, err = c.StopEngine(ctx)
	require.NoError(t, err)
	require.False(t, snapshot.CameraActive)
	require.Equal(t, detection.StatusStopped, snapshot.Status)

	calls := f.classifier.calls.Load()

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, calls, f.classifier.calls.Load())

	f.stop(t)

	_, err = os.Stat(f.markerFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestMonitor_ControlCommands runs the CLI services against a live monitor.
func TestMonitor_ControlCommands(t *testing.T) {
	t.Parallel()

	f := startMonitor(t)
	defer f.stop(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out discard

	require.NoError(t, client.Run(ctx, &client.Options{
		ConfigPath: f.cfgPath,
		Action:     client.ActionEngineStop,
		Out:        &out,
	}))
	require.Positive(t, out.n)

	require.NoError(t, client.Run(ctx, &client.Options{
		ConfigPath:     filepath.Join(t.TempDir(), "missing.yaml"),
		ControlAddress: f.controlAddress,
		Action:         client.ActionEngineStart,
		Out:            &out,
	}))

	require.NoError(t, status.Run(ctx, &status.Options{
		ConfigPath: f.cfgPath,
		Out:        &out,
	}))

	// A second monitor on the same marker is refused.
	err := monitor.Run(ctx, &monitor.Options{ConfigPath: f.cfgPath, Quiet: true})
	require.Error(t, err)
}

// discard counts written bytes.
type discard struct {
	n int
}

func (d *discard) Write(p []byte) (int, error) {
	d.n += len(p)
	return len(p), nil
}
