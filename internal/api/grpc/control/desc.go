package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "drowsyalarm.v1.MonitorControl"

// Full method names.
const (
	MethodGetStatus      = "/" + ServiceName + "/GetStatus"
	MethodSetCalibration = "/" + ServiceName + "/SetCalibration"
	MethodStartEngine    = "/" + ServiceName + "/StartEngine"
	MethodStopEngine     = "/" + ServiceName + "/StopEngine"
)

// MonitorControlServer is the server API of the control service.
type MonitorControlServer interface {
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	SetCalibration(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error)
	StartEngine(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	StopEngine(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterMonitorControlServer registers srv on the gRPC server.
func RegisterMonitorControlServer(registrar grpc.ServiceRegistrar, srv MonitorControlServer) {
	registrar.RegisterService(&serviceDesc, srv)
}

//nolint:gochecknoglobals // Service descriptor, read-only.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MonitorControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    unaryHandler(MethodGetStatus, newEmpty, MonitorControlServer.GetStatus),
		},
		{
			MethodName: "SetCalibration",
			Handler:    unaryHandler(MethodSetCalibration, newBool, MonitorControlServer.SetCalibration),
		},
		{
			MethodName: "StartEngine",
			Handler:    unaryHandler(MethodStartEngine, newEmpty, MonitorControlServer.StartEngine),
		},
		{
			MethodName: "StopEngine",
			Handler:    unaryHandler(MethodStopEngine, newEmpty, MonitorControlServer.StopEngine),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "drowsyalarm/v1/control.proto",
}

func newEmpty() *emptypb.Empty {
	return new(emptypb.Empty)
}

func newBool() *wrapperspb.BoolValue {
	return new(wrapperspb.BoolValue)
}

type unaryMethod[Req proto.Message] func(MonitorControlServer, context.Context, Req) (*structpb.Struct, error)

// unaryHandler builds the grpc method handler the way protoc-gen-go-grpc would.
func unaryHandler[Req proto.Message](
	fullMethod string,
	newRequest func() Req,
	call unaryMethod[Req],
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newRequest()
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(MonitorControlServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(Req)
			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

// MonitorControlClient is the client API of the control service.
type MonitorControlClient struct {
	// cc is the underlying connection.
	cc grpc.ClientConnInterface
}

// NewMonitorControlClient wraps a client connection.
func NewMonitorControlClient(cc grpc.ClientConnInterface) *MonitorControlClient {
	return &MonitorControlClient{cc: cc}
}

// GetStatus returns the current snapshot.
func (c *MonitorControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetStatus, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// SetCalibration toggles calibration mode and returns the resulting snapshot.
func (c *MonitorControlClient) SetCalibration(ctx context.Context, on bool, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodSetCalibration, wrapperspb.Bool(on), out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// StartEngine starts sampling and returns the resulting snapshot.
func (c *MonitorControlClient) StartEngine(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStartEngine, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// StopEngine stops sampling and returns the resulting snapshot.
func (c *MonitorControlClient) StopEngine(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStopEngine, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
