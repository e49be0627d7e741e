package grpc

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"hivemind/internal/admin"
	"hivemind/internal/admission"
	"hivemind/internal/observability"
	"hivemind/internal/ruleforest"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	rateLimitServiceName = "hivemind.ratelimit.v1.RateLimitService"
	healthServiceName    = "hivemind.ratelimit.v1.Health"
)

// Config configures a Server, grounded in the teacher's
// grpcTransportConfig.
type Config struct {
	Addr      string
	KeepAlive time.Duration
	Logger    observability.Logger
	Metrics   observability.Metrics
	Tracer    observability.Tracer
}

// Server serves the ShouldRateLimit and Health RPCs over gRPC, grounded in
// the teacher's GRPCTransport.
type Server struct {
	addr    string
	engine  *admission.Engine
	admin   *admin.Surface
	cfg     Config
	logger  observability.Logger

	mu  sync.Mutex
	lis net.Listener
	srv *grpc.Server
}

// New constructs a Server bound to engine and the admin surface.
func New(engine *admission.Engine, adminSurface *admin.Surface, cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:8081"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NoopTracer{}
	}
	return &Server{addr: addr, engine: engine, admin: adminSurface, cfg: cfg, logger: cfg.Logger}
}

// Start binds the listener and serves until Shutdown is called or Serve
// returns a non-graceful error, mirroring the teacher's GRPCTransport.Start.
func (s *Server) Start() error {
	if s == nil || s.engine == nil {
		return errors.New("grpc: engine is required")
	}
	s.mu.Lock()
	if s.lis == nil {
		lis, err := net.Listen("tcp", s.addr)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.lis = lis
	}
	if s.srv == nil {
		srv := grpc.NewServer(
			grpc.ForceServerCodec(jsonCodec{}),
			grpc.ChainUnaryInterceptor(tracingInterceptor(s.cfg.Tracer), loggingInterceptor(s.logger)),
			grpc.KeepaliveParams(keepalive.ServerParameters{Time: s.cfg.KeepAlive}),
		)
		srv.RegisterService(&rateLimitServiceDesc, &rateLimitServer{engine: s.engine})
		srv.RegisterService(&healthServiceDesc, &healthServer{admin: s.admin})
		s.srv = srv
	}
	srv, lis := s.srv, s.lis
	s.mu.Unlock()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Addr reports the bound address, useful once a ":0" ephemeral port has
// resolved.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server, falling back to a hard stop if ctx
// expires first, mirroring the teacher's GRPCTransport.Shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return errors.New("grpc: server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return ctx.Err()
	}
}

type rateLimitServer struct {
	engine *admission.Engine
}

func (s *rateLimitServer) shouldRateLimit(ctx context.Context, req *ShouldRateLimitRequest) (*ShouldRateLimitResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	hits := uint64(req.HitsAddend)
	if req.HitsAddend == 0 {
		hits = 1
	}
	vectors := make([]ruleforest.Vector, 0, len(req.Descriptors))
	for _, dv := range req.Descriptors {
		vec := make(ruleforest.Vector, 0, len(dv.Entries))
		for _, e := range dv.Entries {
			vec = append(vec, ruleforest.Descriptor{Key: e.Key, Value: e.Value})
		}
		vectors = append(vectors, vec)
	}
	resp := s.engine.ShouldRateLimit(admission.Request{Domain: req.Domain, Descriptors: vectors, Hits: hits})
	return toWireResponse(resp), nil
}

func toWireResponse(resp admission.Response) *ShouldRateLimitResponse {
	out := &ShouldRateLimitResponse{OverallCode: int32(resp.OverallCode)}
	for _, st := range resp.Statuses {
		out.Statuses = append(out.Statuses, DescriptorStatus{
			Code:                 int32(st.Code),
			CurrentLimit:         st.CurrentLimit,
			LimitRemaining:       st.LimitRemaining,
			DurationUntilResetMs: st.DurationUntilReset.Milliseconds(),
		})
		out.ResponseHeadersToAdd = append(out.ResponseHeadersToAdd,
			HeaderValue{Name: "X-RateLimit-Limit", Value: formatUint(st.CurrentLimit)},
			HeaderValue{Name: "X-RateLimit-Remaining", Value: formatUint(st.LimitRemaining)},
			HeaderValue{Name: "X-RateLimit-Reset", Value: formatUint(uint64(st.DurationUntilReset / time.Second))},
		)
	}
	return out
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

type healthServer struct {
	admin *admin.Surface
}

func (s *healthServer) health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok"}, nil
}

func (s *healthServer) ready(context.Context, *HealthRequest) (*HealthResponse, error) {
	if s.admin == nil {
		return &HealthResponse{Status: "not_ready"}, nil
	}
	st := s.admin.Health()
	label := "not_ready"
	if st.Ready {
		label = "ok"
	}
	return &HealthResponse{Status: label, PeerCount: int32(st.PeerCount), DomainCount: int32(st.DomainCount)}, nil
}
