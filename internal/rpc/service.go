package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kvshard/internal/router"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kvshard.v1.Router"

const doMethod = "/" + ServiceName + "/Do"

// RouterServer is the server API for the kvshard.v1.Router service.
type RouterServer interface {
	Do(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Do",
			Handler:    doHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: fileName,
}

func doHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouterServer).Do(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: doMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RouterServer).Do(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv RouterServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Submitter is the router entry point the service drives.
type Submitter interface {
	Submit(ctx context.Context, req router.Request) router.Response
}

// Server implements RouterServer on top of a router.
type Server struct {
	router Submitter
}

var _ RouterServer = (*Server)(nil)

// NewServer creates a service backed by r.
func NewServer(r Submitter) *Server {
	return &Server{router: r}
}

// Do decodes the request, submits it and encodes the outcome. Busy and Err
// outcomes are regular responses; only malformed requests fail the RPC.
func (s *Server) Do(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := DecodeRequest(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	return EncodeResponse(s.router.Submit(ctx, req)), nil
}
