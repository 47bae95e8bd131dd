//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/drowsy-alarm/internal/api/grpc/control"
	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// Client wraps the MonitorControl gRPC client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the monitor.
	conn *grpc.ClientConn
	// api is the MonitorControl client.
	api *control.MonitorControlClient
	// actor is attached to every call, may be nil.
	actor *control.Actor

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor attaches the actor to every call.
func WithActor(actor *control.Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the monitor control API.
// Note: this uses insecure transport credentials; the control API is meant to
// listen on loopback or a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial monitor: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         control.NewMonitorControlClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Status retrieves the current snapshot.
func (c *Client) Status(ctx context.Context) (*detection.Snapshot, error) {
	return c.call(ctx, "get status", c.api.GetStatus)
}

// SetCalibration toggles calibration mode on the monitor.
func (c *Client) SetCalibration(ctx context.Context, on bool) (*detection.Snapshot, error) {
	return c.call(ctx, "set calibration", func(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
		return c.api.SetCalibration(ctx, on, opts...)
	})
}

// StartEngine starts sampling on the monitor.
func (c *Client) StartEngine(ctx context.Context) (*detection.Snapshot, error) {
	return c.call(ctx, "start engine", c.api.StartEngine)
}

// StopEngine stops sampling on the monitor.
func (c *Client) StopEngine(ctx context.Context) (*detection.Snapshot, error) {
	return c.call(ctx, "stop engine", c.api.StopEngine)
}

func (c *Client) call(
	ctx context.Context,
	operation string,
	invoke func(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error),
) (*detection.Snapshot, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := invoke(control.WithActor(callCtx, c.actor))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	snapshot, err := control.ToSnapshot(response)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return snapshot, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
