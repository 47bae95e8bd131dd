package control

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/drowsy-alarm/internal/api/view"
	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// Controller abstracts the monitor operations the transport layer depends on.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Snapshot() *detection.Snapshot
	SetCalibration(ctx context.Context, on bool) *detection.Snapshot
}

// Server implements the MonitorControl gRPC API.
type Server struct {
	// controller provides the monitor operations.
	controller Controller
}

// NewServer wires the controller into a gRPC handler.
func NewServer(controller Controller) *Server {
	return &Server{
		controller: controller,
	}
}

// GetStatus returns the current snapshot.
func (s *Server) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.controller.Snapshot())
}

// SetCalibration toggles calibration mode.
func (s *Server) SetCalibration(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	logger.InfoKV(ctx, "Calibration toggle requested", "enabled", req.GetValue(), "actor", ActorFromContext(ctx).String())

	return toStruct(s.controller.SetCalibration(ctx, req.GetValue()))
}

// StartEngine acquires the camera and starts sampling.
func (s *Server) StartEngine(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	logger.InfoKV(ctx, "Engine start requested", "actor", ActorFromContext(ctx).String())

	err := s.controller.Start(ctx)

	switch {
	case err == nil:
	case errors.Is(err, camera.ErrDenied):
		return nil, status.Error(codes.PermissionDenied, err.Error())
	default:
		return nil, status.Error(codes.Internal, err.Error())
	}

	return toStruct(s.controller.Snapshot())
}

// StopEngine stops sampling.
func (s *Server) StopEngine(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	logger.InfoKV(ctx, "Engine stop requested", "actor", ActorFromContext(ctx).String())

	s.controller.Stop(ctx)

	return toStruct(s.controller.Snapshot())
}

// Serve registers the server on a new gRPC server and serves listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx = logger.WithName(ctx, "control")

	grpcServer := grpc.NewServer()
	RegisterMonitorControlServer(grpcServer, s)

	logger.InfoKV(ctx, "Control server listening", "listen_address", listener.Addr().String())

	// Done channel is closed after GracefulStop finishes.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// Run listens on address and serves until ctx is done.
func (s *Server) Run(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.Serve(ctx, lis)
}

// ToSnapshot decodes a snapshot returned by the control API.
func ToSnapshot(value *structpb.Struct) (*detection.Snapshot, error) {
	if value == nil {
		return nil, errors.New("empty snapshot")
	}

	var v view.Snapshot
	if err := view.FromMap(value.AsMap(), &v); err != nil {
		return nil, err
	}

	return v.ToSnapshot(), nil
}

func toStruct(snapshot *detection.Snapshot) (*structpb.Struct, error) {
	m, err := view.ToMap(view.FromSnapshot(snapshot))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	value, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return value, nil
}
