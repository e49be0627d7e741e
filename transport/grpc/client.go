package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin hand-written stub for the ShouldRateLimit/Health RPCs,
// standing in for a protoc-generated client (see types.go) against the
// same *grpc.ClientConn a real one would use.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an established connection. The connection must be dialed
// with DialOption() among its options so requests and responses are
// marshaled with the same codec the server unmarshals them with.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// DialOption returns the grpc.DialOption that makes a *grpc.ClientConn
// speak this package's wire codec, for callers outside the package
// (grpc.ForceCodec's argument type is itself unexported-safe to use this
// way since encoding.Codec only needs the three-method shape).
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}))
}

// ShouldRateLimit invokes the RateLimitService's sole method.
func (c *Client) ShouldRateLimit(ctx context.Context, req *ShouldRateLimitRequest) (*ShouldRateLimitResponse, error) {
	resp := new(ShouldRateLimitResponse)
	if err := c.conn.Invoke(ctx, "/"+rateLimitServiceName+"/ShouldRateLimit", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Ready invokes the Health service's Ready method.
func (c *Client) Ready(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	resp := new(HealthResponse)
	if err := c.conn.Invoke(ctx, "/"+healthServiceName+"/Ready", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
