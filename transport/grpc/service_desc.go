package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"hivemind/internal/observability"
)

// rateLimitServiceDesc is a hand-written grpc.ServiceDesc standing in for
// the generated descriptor a .proto file would normally produce — there is
// none in the retrieval pack for this contract (see types.go). The method
// table and Handler signature are the same shape grpc-go's protoc plugin
// emits; only the marshaling (jsonCodec, see codec.go) differs from a real
// protobuf service.
var rateLimitServiceDesc = grpc.ServiceDesc{
	ServiceName: rateLimitServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ShouldRateLimit",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(ShouldRateLimitRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(*rateLimitServer).shouldRateLimit(ctx, req.(*ShouldRateLimitRequest))
				}
				if interceptor == nil {
					return handler(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + rateLimitServiceName + "/ShouldRateLimit"}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

var healthServiceDesc = grpc.ServiceDesc{
	ServiceName: healthServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unaryHealthMethod("Health", func(s *healthServer) func(context.Context, *HealthRequest) (*HealthResponse, error) {
			return s.health
		}),
		unaryHealthMethod("Ready", func(s *healthServer) func(context.Context, *HealthRequest) (*HealthResponse, error) {
			return s.ready
		}),
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHealthMethod(name string, pick func(*healthServer) func(context.Context, *HealthRequest) (*HealthResponse, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(HealthRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			fn := pick(srv.(*healthServer))
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(ctx, req.(*HealthRequest))
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + healthServiceName + "/" + name}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// loggingInterceptor mirrors the teacher's grpcRequestIDInterceptor.
func loggingInterceptor(logger observability.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if logger != nil {
			fields := map[string]any{
				"method":      info.FullMethod,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
				logger.Error("grpc request error", fields)
			} else {
				logger.Info("grpc request", fields)
			}
		}
		return resp, err
	}
}

// tracingInterceptor mirrors the teacher's grpcTracingMetricsInterceptor:
// it opens a span named after the RPC's full method for the duration of the
// handler, recording the error (if any) before closing the span. tracer
// defaults to observability.NoopTracer{}, so the span is always opened even
// when no real tracing SDK is wired in.
func tracingInterceptor(tracer observability.Tracer) grpc.UnaryServerInterceptor {
	if tracer == nil {
		tracer = observability.NoopTracer{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		spanCtx, span := tracer.StartSpan(ctx, info.FullMethod)
		defer span.End()
		resp, err := handler(spanCtx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}
