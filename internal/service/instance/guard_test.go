package instance

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquire_Release writes and removes the marker.
func TestAcquire_Release(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "monitor.pid")

	g, err := Acquire(context.Background(), path, false)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

	// The current process is alive and runs the same executable.
	_, err = Acquire(context.Background(), path, false)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	// Replace never terminates the current process.
	_, err = Acquire(context.Background(), path, true)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, g.Release())

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, (*Guard)(nil).Release())
}

// TestAcquire_StaleMarker takes over markers of dead processes and garbage markers.
func TestAcquire_StaleMarker(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{"2147483646", "not-a-pid", ""} {
		path := filepath.Join(t.TempDir(), "monitor.pid")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		g, err := Acquire(context.Background(), path, false)
		require.NoError(t, err, contents)
		require.NoError(t, g.Release())
	}
}

// TestRelease_ForeignMarker leaves a marker that was taken over.
func TestRelease_ForeignMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "monitor.pid")

	g, err := Acquire(context.Background(), path, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("1"), 0o600))
	require.NoError(t, g.Release())

	_, err = os.Stat(path)
	require.NoError(t, err)
}
