// Hand-authored in the shape protoc-gen-go-grpc would produce from a
// fabric/v1/service.proto this environment has no protoc to run.
package v1

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
)

// FabricServiceClient is the client API for FabricService service.
type FabricServiceClient interface {
	SubmitJob(ctx context.Context, in *SubmitJobRequest, opts ...grpc.CallOption) (*SubmitJobResponse, error)
	CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*CancelJobResponse, error)
	JobStatus(ctx context.Context, in *JobStatusRequest, opts ...grpc.CallOption) (*JobStatusResponse, error)
	StreamOutput(ctx context.Context, in *StreamOutputRequest, opts ...grpc.CallOption) (FabricService_StreamOutputClient, error)
}

type fabricServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFabricServiceClient(cc grpc.ClientConnInterface) FabricServiceClient {
	return &fabricServiceClient{cc}
}

func (c *fabricServiceClient) SubmitJob(ctx context.Context, in *SubmitJobRequest, opts ...grpc.CallOption) (*SubmitJobResponse, error) {
	out := new(SubmitJobResponse)
	if err := c.cc.Invoke(ctx, "/fabric.v1.FabricService/SubmitJob", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fabricServiceClient) CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*CancelJobResponse, error) {
	out := new(CancelJobResponse)
	if err := c.cc.Invoke(ctx, "/fabric.v1.FabricService/CancelJob", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fabricServiceClient) JobStatus(ctx context.Context, in *JobStatusRequest, opts ...grpc.CallOption) (*JobStatusResponse, error) {
	out := new(JobStatusResponse)
	if err := c.cc.Invoke(ctx, "/fabric.v1.FabricService/JobStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fabricServiceClient) StreamOutput(ctx context.Context, in *StreamOutputRequest, opts ...grpc.CallOption) (FabricService_StreamOutputClient, error) {
	stream, err := c.cc.NewStream(ctx, &FabricService_ServiceDesc.Streams[0], "/fabric.v1.FabricService/StreamOutput", opts...)
	if err != nil {
		return nil, err
	}
	x := &fabricServiceStreamOutputClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type FabricService_StreamOutputClient interface {
	Recv() (*OutputChunk, error)
	grpc.ClientStream
}

type fabricServiceStreamOutputClient struct {
	grpc.ClientStream
}

func (x *fabricServiceStreamOutputClient) Recv() (*OutputChunk, error) {
	m := new(OutputChunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// FabricServiceServer is the server API for FabricService service.
// All implementations should embed UnimplementedFabricServiceServer
// for forward compatibility.
type FabricServiceServer interface {
	SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error)
	CancelJob(context.Context, *CancelJobRequest) (*CancelJobResponse, error)
	JobStatus(context.Context, *JobStatusRequest) (*JobStatusResponse, error)
	StreamOutput(*StreamOutputRequest, FabricService_StreamOutputServer) error
}

// UnimplementedFabricServiceServer should be embedded to have forward
// compatible implementations.
type UnimplementedFabricServiceServer struct{}

func (UnimplementedFabricServiceServer) SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubmitJob not implemented")
}
func (UnimplementedFabricServiceServer) CancelJob(context.Context, *CancelJobRequest) (*CancelJobResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CancelJob not implemented")
}
func (UnimplementedFabricServiceServer) JobStatus(context.Context, *JobStatusRequest) (*JobStatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method JobStatus not implemented")
}
func (UnimplementedFabricServiceServer) StreamOutput(*StreamOutputRequest, FabricService_StreamOutputServer) error {
	return status.Errorf(codes.Unimplemented, "method StreamOutput not implemented")
}

func RegisterFabricServiceServer(s grpc.ServiceRegistrar, srv FabricServiceServer) {
	s.RegisterService(&FabricService_ServiceDesc, srv)
}

func _FabricService_SubmitJob_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServiceServer).SubmitJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fabric.v1.FabricService/SubmitJob"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServiceServer).SubmitJob(ctx, req.(*SubmitJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _FabricService_CancelJob_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServiceServer).CancelJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fabric.v1.FabricService/CancelJob"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServiceServer).CancelJob(ctx, req.(*CancelJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _FabricService_JobStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(JobStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServiceServer).JobStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fabric.v1.FabricService/JobStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServiceServer).JobStatus(ctx, req.(*JobStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _FabricService_StreamOutput_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(StreamOutputRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(FabricServiceServer).StreamOutput(m, &fabricServiceStreamOutputServer{stream})
}

type FabricService_StreamOutputServer interface {
	Send(*OutputChunk) error
	grpc.ServerStream
}

type fabricServiceStreamOutputServer struct {
	grpc.ServerStream
}

func (x *fabricServiceStreamOutputServer) Send(m *OutputChunk) error {
	return x.ServerStream.SendMsg(m)
}

// FabricService_ServiceDesc is the grpc.ServiceDesc for FabricService
// service. It's only intended for direct use with grpc.RegisterService,
// and not to be introspected or modified (even as a copy).
var FabricService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "fabric.v1.FabricService",
	HandlerType: (*FabricServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJob", Handler: _FabricService_SubmitJob_Handler},
		{MethodName: "CancelJob", Handler: _FabricService_CancelJob_Handler},
		{MethodName: "JobStatus", Handler: _FabricService_JobStatus_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamOutput",
			Handler:       _FabricService_StreamOutput_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "fabric/v1/service.proto",
}
