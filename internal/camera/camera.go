package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/config"
)

var (
	// ErrDenied is returned when the capture device cannot be acquired.
	// It is fatal for the sampling loop and requires operator action.
	ErrDenied = errors.New("camera access denied")
	// ErrClosed is returned by Capture after the stream was released.
	ErrClosed = errors.New("camera stream closed")
)

// Constraints are the requested frame dimensions.
type Constraints struct {
	// Width is the requested frame width in pixels.
	Width int
	// Height is the requested frame height in pixels.
	Height int
}

// DefaultConstraints returns the 640x480 capture constraints.
func DefaultConstraints() Constraints {
	return Constraints{
		Width:  config.DefaultFrameWidth,
		Height: config.DefaultFrameHeight,
	}
}

// Frame is one captured JPEG image.
type Frame struct {
	// Data holds the JPEG bytes.
	Data []byte
	// Seq is the capture sequence number within the stream, starting at 1.
	Seq uint64
	// CapturedAt is the capture time.
	CapturedAt time.Time
	// Width is the frame width requested from the device.
	Width int
	// Height is the frame height requested from the device.
	Height int
}

// Source acquires a capture device.
type Source interface {
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is an acquired capture device. Close releases every track and is idempotent.
type Stream interface {
	Capture(ctx context.Context) (Frame, error)
	Close() error
}

// New builds the source described by the camera configuration.
//
//nolint:ireturn // The source kind is chosen by configuration.
func New(cfg config.Camera) (Source, error) {
	switch cfg.Source {
	case config.CameraSourceDirectory:
		return NewDirectorySource(cfg.Path), nil
	case config.CameraSourceCommand:
		return NewCommandSource(cfg.Command), nil
	default:
		return nil, fmt.Errorf("create camera source %q: unsupported kind", cfg.Source)
	}
}
