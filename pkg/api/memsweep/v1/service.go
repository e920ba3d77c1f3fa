package memsweepv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "memsweep.v1.MemSweepDaemon"

// Full method names.
const (
	MemSweepDaemon_Optimize_FullMethodName      = "/" + ServiceName + "/Optimize"
	MemSweepDaemon_GetStatus_FullMethodName     = "/" + ServiceName + "/GetStatus"
	MemSweepDaemon_WatchProgress_FullMethodName = "/" + ServiceName + "/WatchProgress"
	MemSweepDaemon_Shutdown_FullMethodName      = "/" + ServiceName + "/Shutdown"
)

// MemSweepDaemonServer is the server API for the MemSweepDaemon service.
type MemSweepDaemonServer interface {
	// Optimize runs an optimization and streams its progress. The final
	// event carries the finished run.
	Optimize(*OptimizeRequest, grpc.ServerStreamingServer[ProgressEvent]) error
	// GetStatus returns the daemon status.
	GetStatus(context.Context, *GetStatusRequest) (*DaemonStatus, error)
	// WatchProgress streams progress of every run until the client leaves.
	WatchProgress(*WatchProgressRequest, grpc.ServerStreamingServer[ProgressEvent]) error
	// Shutdown stops the daemon.
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
}

// UnimplementedMemSweepDaemonServer must be embedded by server
// implementations for forward compatibility.
type UnimplementedMemSweepDaemonServer struct{}

func (UnimplementedMemSweepDaemonServer) Optimize(*OptimizeRequest, grpc.ServerStreamingServer[ProgressEvent]) error {
	return status.Error(codes.Unimplemented, "method Optimize not implemented")
}

func (UnimplementedMemSweepDaemonServer) GetStatus(context.Context, *GetStatusRequest) (*DaemonStatus, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedMemSweepDaemonServer) WatchProgress(*WatchProgressRequest, grpc.ServerStreamingServer[ProgressEvent]) error {
	return status.Error(codes.Unimplemented, "method WatchProgress not implemented")
}

func (UnimplementedMemSweepDaemonServer) Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}

// RegisterMemSweepDaemonServer registers srv with s.
func RegisterMemSweepDaemonServer(s grpc.ServiceRegistrar, srv MemSweepDaemonServer) {
	s.RegisterService(&MemSweepDaemon_ServiceDesc, srv)
}

func _MemSweepDaemon_Optimize_Handler(srv any, stream grpc.ServerStream) error {
	m := new(OptimizeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MemSweepDaemonServer).Optimize(m, &grpc.GenericServerStream[OptimizeRequest, ProgressEvent]{ServerStream: stream})
}

func _MemSweepDaemon_GetStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MemSweepDaemonServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MemSweepDaemon_GetStatus_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MemSweepDaemonServer).GetStatus(ctx, req.(*GetStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MemSweepDaemon_WatchProgress_Handler(srv any, stream grpc.ServerStream) error {
	m := new(WatchProgressRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MemSweepDaemonServer).WatchProgress(m, &grpc.GenericServerStream[WatchProgressRequest, ProgressEvent]{ServerStream: stream})
}

func _MemSweepDaemon_Shutdown_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ShutdownRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MemSweepDaemonServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MemSweepDaemon_Shutdown_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MemSweepDaemonServer).Shutdown(ctx, req.(*ShutdownRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// MemSweepDaemon_ServiceDesc is the grpc.ServiceDesc for the MemSweepDaemon
// service.
var MemSweepDaemon_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MemSweepDaemonServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    _MemSweepDaemon_GetStatus_Handler,
		},
		{
			MethodName: "Shutdown",
			Handler:    _MemSweepDaemon_Shutdown_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Optimize",
			Handler:       _MemSweepDaemon_Optimize_Handler,
			ServerStreams: true,
		},
		{
			StreamName:    "WatchProgress",
			Handler:       _MemSweepDaemon_WatchProgress_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "memsweep/v1/memsweep.api",
}

// MemSweepDaemonClient is the client API for the MemSweepDaemon service.
type MemSweepDaemonClient interface {
	Optimize(ctx context.Context, in *OptimizeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ProgressEvent], error)
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*DaemonStatus, error)
	WatchProgress(ctx context.Context, in *WatchProgressRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ProgressEvent], error)
	Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error)
}

type memSweepDaemonClient struct {
	cc grpc.ClientConnInterface
}

// NewMemSweepDaemonClient returns a client stub on cc. Every call uses the
// JSON codec.
func NewMemSweepDaemonClient(cc grpc.ClientConnInterface) MemSweepDaemonClient {
	return &memSweepDaemonClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.StaticMethod(), grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *memSweepDaemonClient) serverStream(ctx context.Context, desc *grpc.StreamDesc, method string, in any, opts []grpc.CallOption) (grpc.ClientStream, error) {
	stream, err := c.cc.NewStream(ctx, desc, method, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *memSweepDaemonClient) Optimize(ctx context.Context, in *OptimizeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ProgressEvent], error) {
	stream, err := c.serverStream(ctx, &MemSweepDaemon_ServiceDesc.Streams[0], MemSweepDaemon_Optimize_FullMethodName, in, opts)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[OptimizeRequest, ProgressEvent]{ClientStream: stream}, nil
}

func (c *memSweepDaemonClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*DaemonStatus, error) {
	out := new(DaemonStatus)
	if err := c.cc.Invoke(ctx, MemSweepDaemon_GetStatus_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *memSweepDaemonClient) WatchProgress(ctx context.Context, in *WatchProgressRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ProgressEvent], error) {
	stream, err := c.serverStream(ctx, &MemSweepDaemon_ServiceDesc.Streams[1], MemSweepDaemon_WatchProgress_FullMethodName, in, opts)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[WatchProgressRequest, ProgressEvent]{ClientStream: stream}, nil
}

func (c *memSweepDaemonClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	out := new(ShutdownResponse)
	if err := c.cc.Invoke(ctx, MemSweepDaemon_Shutdown_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
