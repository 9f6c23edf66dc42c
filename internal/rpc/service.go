// Package rpc defines the storage protocol shared by the gRPC server and
// the remote connector. Messages are google.protobuf.Struct values, so the
// service descriptor is written by hand instead of generated.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "entitycore.v1.Storage"

	SaveMethod       = "/" + ServiceName + "/Save"
	DeleteMethod     = "/" + ServiceName + "/Delete"
	FindUniqueMethod = "/" + ServiceName + "/FindUnique"
	HealthMethod     = "/" + ServiceName + "/Health"
)

// StorageServer is the server side of the protocol
type StorageServer interface {
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindUnique(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterStorageServer attaches srv to s
func RegisterStorageServer(s grpc.ServiceRegistrar, srv StorageServer) {
	s.RegisterService(&StorageServiceDesc, srv)
}

type unaryMethod func(StorageServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StorageServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StorageServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StorageServiceDesc describes the service to grpc
var StorageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Save", Handler: unaryHandler(SaveMethod, StorageServer.Save)},
		{MethodName: "Delete", Handler: unaryHandler(DeleteMethod, StorageServer.Delete)},
		{MethodName: "FindUnique", Handler: unaryHandler(FindUniqueMethod, StorageServer.FindUnique)},
		{MethodName: "Health", Handler: unaryHandler(HealthMethod, StorageServer.Health)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "entitycore/v1/storage.proto",
}

// StorageClient is the client side of the protocol
type StorageClient interface {
	Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FindUnique(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Health(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type storageClient struct {
	cc grpc.ClientConnInterface
}

// NewStorageClient wraps a connection
func NewStorageClient(cc grpc.ClientConnInterface) StorageClient {
	return &storageClient{cc: cc}
}

func (c *storageClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SaveMethod, in, opts)
}

func (c *storageClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, DeleteMethod, in, opts)
}

func (c *storageClient) FindUnique(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FindUniqueMethod, in, opts)
}

func (c *storageClient) Health(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, HealthMethod, in, opts)
}
