package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// errEmptyFrame is returned when the capture command printed nothing.
var errEmptyFrame = errors.New("capture command produced an empty frame")

// CommandSource captures frames by running an external command that writes one
// JPEG image to stdout, e.g.
//
//	ffmpeg -loglevel error -f v4l2 -video_size {width}x{height} -i /dev/video0 -frames:v 1 -f mjpeg -
//
// The placeholders {width} and {height} are replaced by the requested constraints.
type CommandSource struct {
	// argv is the capture command line.
	argv []string
}

// NewCommandSource returns a source running argv once per capture.
func NewCommandSource(argv []string) *CommandSource {
	return &CommandSource{argv: slices.Clone(argv)}
}

// Open resolves the capture executable and performs one trial capture, so a missing,
// busy or forbidden device is reported as ErrDenied before sampling starts.
//
//nolint:ireturn // Source contract.
func (s *CommandSource) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(s.argv) == 0 {
		return nil, fmt.Errorf("%w: capture command is empty", ErrDenied)
	}

	path, err := exec.LookPath(s.argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDenied, err)
	}

	replacer := strings.NewReplacer(
		"{width}", strconv.Itoa(constraints.Width),
		"{height}", strconv.Itoa(constraints.Height),
	)

	args := make([]string, 0, len(s.argv)-1)
	for _, arg := range s.argv[1:] {
		args = append(args, replacer.Replace(arg))
	}

	stream := &commandStream{
		path:        path,
		args:        args,
		constraints: constraints,
	}

	if _, err = stream.run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, ErrDenied) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: trial capture: %w", ErrDenied, err)
	}

	return stream, nil
}

type commandStream struct {
	path        string
	args        []string
	constraints Constraints

	mu     sync.Mutex
	seq    uint64
	closed bool
}

func (s *commandStream) Capture(ctx context.Context) (Frame, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrClosed
	}

	s.seq++
	seq := s.seq

	s.mu.Unlock()

	data, err := s.run(ctx)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Data:       data,
		Seq:        seq,
		CapturedAt: time.Now(),
		Width:      s.constraints.Width,
		Height:     s.constraints.Height,
	}, nil
}

// run executes the capture command once and returns its stdout.
func (s *commandStream) run(ctx context.Context) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	//nolint:gosec // The capture command comes from trusted configuration.
	cmd := exec.CommandContext(ctx, s.path, s.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		output := strings.TrimSpace(stderr.String())

		if errors.Is(err, fs.ErrPermission) || strings.Contains(strings.ToLower(output), "permission denied") {
			return nil, fmt.Errorf("%w: %w: %s", ErrDenied, err, output)
		}

		return nil, fmt.Errorf("run capture command: %w: %s", err, output)
	}

	if stdout.Len() == 0 {
		return nil, errEmptyFrame
	}

	return stdout.Bytes(), nil
}

func (s *commandStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}
