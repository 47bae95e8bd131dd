package control

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// fakeController records calls and the actor seen by the server.
type fakeController struct {
	mu          sync.Mutex
	running     bool
	calibrating bool
	startErr    error
	actor       *Actor
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.actor = ActorFromContext(ctx)

	if f.startErr != nil {
		return f.startErr
	}

	f.running = true

	return nil
}

func (f *fakeController) Stop(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.running = false
}

func (f *fakeController) Snapshot() *detection.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &detection.Snapshot{
		Status:       detection.StatusCameraActive,
		Tier:         detection.TierStarting,
		State:        detection.StateSearching,
		CameraActive: f.running,
		Calibrating:  f.calibrating,
		Sequence:     7,
	}
}

func (f *fakeController) SetCalibration(_ context.Context, on bool) *detection.Snapshot {
	f.mu.Lock()
	f.calibrating = on
	f.mu.Unlock()

	return f.Snapshot()
}

// dialBuffered starts the server on an in-memory listener and returns a client.
func dialBuffered(t *testing.T, controller Controller) *MonitorControlClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	lis := bufconn.Listen(1 << 20)

	served := make(chan error, 1)

	go func() {
		served <- NewServer(controller).Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, conn.Close())
		cancel()
		require.NoError(t, <-served)
	})

	return NewMonitorControlClient(conn)
}

// TestServer_Roundtrip exercises every method over a real gRPC connection.
func TestServer_Roundtrip(t *testing.T) {
	t.Parallel()

	var (
		ctx        = WithActor(context.Background(), &Actor{Hostname: "desk", Username: "ann"})
		controller = &fakeController{}
		client     = dialBuffered(t, controller)
	)

	value, err := client.GetStatus(ctx)
	require.NoError(t, err)

	snapshot, err := ToSnapshot(value)
	require.NoError(t, err)
	require.Equal(t, detection.StatusCameraActive, snapshot.Status)
	require.Equal(t, detection.StateSearching, snapshot.State)
	require.Equal(t, uint64(7), snapshot.Sequence)
	require.False(t, snapshot.CameraActive)

	value, err = client.StartEngine(ctx)
	require.NoError(t, err)

	snapshot, err = ToSnapshot(value)
	require.NoError(t, err)
	require.True(t, snapshot.CameraActive)
	require.Equal(t, &Actor{Hostname: "desk", Username: "ann"}, controller.actor)

	value, err = client.SetCalibration(ctx, true)
	require.NoError(t, err)

	snapshot, err = ToSnapshot(value)
	require.NoError(t, err)
	require.True(t, snapshot.Calibrating)

	value, err = client.StopEngine(ctx)
	require.NoError(t, err)

	snapshot, err = ToSnapshot(value)
	require.NoError(t, err)
	require.False(t, snapshot.CameraActive)
}

// TestServer_StartErrors maps engine errors to status codes.
func TestServer_StartErrors(t *testing.T) {
	t.Parallel()

	controller := &fakeController{startErr: camera.ErrDenied}
	client := dialBuffered(t, controller)

	_, err := client.StartEngine(context.Background())
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	s := NewServer(&fakeController{startErr: errors.New("boom")})

	_, err = s.StartEngine(context.Background(), &emptypb.Empty{})
	require.Equal(t, codes.Internal, status.Code(err))

	_, err = s.SetCalibration(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestActorMetadata round-trips the actor through metadata.
func TestActorMetadata(t *testing.T) {
	t.Parallel()

	require.Nil(t, ActorFromContext(context.Background()))
	require.Equal(t, "unknown", (*Actor)(nil).String())
	require.Equal(t, "ann@desk", (&Actor{Hostname: "desk", Username: "ann"}).String())

	_, err := ToSnapshot(nil)
	require.Error(t, err)
}
