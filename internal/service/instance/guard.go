package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// ErrAlreadyRunning is returned when another monitor holds the marker.
var ErrAlreadyRunning = errors.New("another monitor is already running")

const (
	// terminateTimeout bounds the graceful shutdown of a replaced monitor before it is killed.
	terminateTimeout = 10 * time.Second
	// exitPollInterval is how often a terminated process is looked up.
	exitPollInterval = 100 * time.Millisecond
)

// Guard holds the marker file until Release.
type Guard struct {
	// path is the marker file location.
	path string
	// pid is the PID written to the marker.
	pid int
}

// Acquire writes the marker for the current process. When replace is set, a
// live holder is terminated instead of failing with ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, replace bool) (*Guard, error) {
	path = filepath.Clean(path)
	pid := os.Getpid()

	holder, err := liveHolder(path)
	if err != nil {
		return nil, err
	}

	if holder != nil {
		if !replace || holder.Pid() == pid {
			return nil, fmt.Errorf("%w: pid %d", ErrAlreadyRunning, holder.Pid())
		}

		logger.WarnKV(ctx, "Terminating running monitor", "pid", holder.Pid())

		if err = terminate(ctx, holder.Pid(), terminateTimeout); err != nil {
			return nil, fmt.Errorf("terminate pid %d: %w", holder.Pid(), err)
		}
	}

	if err = os.WriteFile(path, []byte(strconv.Itoa(pid)), config.DefaultFilePermissions); err != nil {
		return nil, fmt.Errorf("write marker: %w", err)
	}

	logger.DebugKV(ctx, "Instance marker acquired", "path", path, "pid", pid)

	return &Guard{
		path: path,
		pid:  pid,
	}, nil
}

// Release removes the marker if it still names this process.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}

	pid, err := readMarker(g.path)
	if err != nil || pid != g.pid {
		return nil //nolint:nilerr // Someone else owns the marker now.
	}

	if err = os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove marker: %w", err)
	}

	return nil
}

// liveHolder returns the process named by the marker when it is alive and runs
// the same executable as this process.
//
//nolint:ireturn // ps.Process is the library type.
func liveHolder(path string) (ps.Process, error) {
	pid, err := readMarker(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		// Unreadable or garbage markers are stale.
		return nil, nil //nolint:nilerr // Treated as stale.
	}

	holder, err := ps.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}

	if holder == nil {
		return nil, nil
	}

	self, err := ps.FindProcess(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("find current process: %w", err)
	}

	if self != nil && self.Executable() != holder.Executable() {
		return nil, nil
	}

	return holder, nil
}

func readMarker(path string) (int, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid marker %q", strings.TrimSpace(string(contents)))
	}

	return pid, nil
}

// terminate asks the process to shut down and waits until it is gone.
// It is killed when it outlives timeout or ignores the request.
func terminate(ctx context.Context, pid int, timeout time.Duration) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	// SIGTERM runs the shutdown path of the other monitor, which releases its camera and alarm.
	if err = process.Signal(syscall.SIGTERM); err != nil {
		logger.DebugKV(ctx, "Graceful termination unavailable", "pid", pid, "error", err)

		return kill(ctx, process)
	}

	if err = waitExit(ctx, pid, timeout); err == nil {
		return nil
	}

	logger.WarnKV(ctx, "Monitor did not stop in time, killing it", "pid", pid, "timeout", timeout)

	return kill(ctx, process)
}

func kill(ctx context.Context, process *os.Process) error {
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process: %w", err)
	}

	return waitExit(ctx, process.Pid, terminateTimeout)
}

// waitExit polls the process table until pid disappears.
func waitExit(ctx context.Context, pid int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()

	for {
		process, err := ps.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process %d: %w", pid, err)
		}

		if process == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for process %d: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}
