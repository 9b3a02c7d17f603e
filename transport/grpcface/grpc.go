package grpcface

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FaceServer is the server API for the Face gRPC service. The request is an
// encoded Interest, the reply an encoded Data packet.
type FaceServer interface {
	Express(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedFaceServer can be embedded to have forward compatible implementations.
type UnimplementedFaceServer struct{}

func (UnimplementedFaceServer) Express(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Express not implemented")
}

// RegisterFaceServer registers the Face service on a gRPC server.
func RegisterFaceServer(s grpc.ServiceRegistrar, srv FaceServer) {
	s.RegisterService(&Face_ServiceDesc, srv)
}

// FaceClient is the client API for the Face gRPC service.
type FaceClient interface {
	Express(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type faceClient struct{ cc grpc.ClientConnInterface }

func NewFaceClient(cc grpc.ClientConnInterface) FaceClient { return &faceClient{cc: cc} }

func (c *faceClient) Express(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/xdao.svs.transport.grpcface.v1.Face/Express", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Face_Express_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceServer).Express(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/xdao.svs.transport.grpcface.v1.Face/Express"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceServer).Express(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Face_ServiceDesc is the grpc.ServiceDesc for the Face service.
var Face_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "xdao.svs.transport.grpcface.v1.Face",
	HandlerType: (*FaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Express", Handler: _Face_Express_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "face.proto",
}
