package engine

import (
	"context"

	"google.golang.org/grpc"
)

// RegisterServer exposes a Client implementation as the matching engine
// service, using the same JSON codec as GRPCClient. It backs simulators and
// tests.
func RegisterServer(s *grpc.Server, impl Client) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Client)(nil),
	Methods: []grpc.MethodDesc{
		method("PlaceLimitOrder", Client.PlaceLimitOrder),
		method("PlaceMarketOrder", Client.PlaceMarketOrder),
		method("CancelLimitOrder", Client.CancelLimitOrder),
		method("MassCancelLimitOrders", Client.MassCancelLimitOrders),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matching.proto",
}

func method[T any](name string, call func(Client, context.Context, T) (*Response, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var req T
			if err := dec(&req); err != nil {
				return nil, err
			}
			impl := srv.(Client)
			if interceptor == nil {
				return call(impl, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			return interceptor(ctx, &req, info, func(ctx context.Context, r any) (any, error) {
				return call(impl, ctx, *r.(*T))
			})
		},
	}
}
