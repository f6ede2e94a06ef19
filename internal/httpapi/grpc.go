package httpapi

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"secureshop.org/internal/audit"
	"secureshop.org/internal/auth"
	"secureshop.org/internal/obs"
)

const (
	grpcAuthMetadata = "authorization"
	grpcRequestIDKey = "x-request-id"

	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// GRPCAuth runs the gate in front of gRPC methods. Every method needs either
// a role rule or an explicit public declaration; anything else is denied.
type GRPCAuth struct {
	gate   *auth.Gate
	rules  map[string]auth.RoleSet
	public map[string]struct{}
}

// GRPCAuthOption configures GRPCAuth.
type GRPCAuthOption func(*GRPCAuth)

// WithMethodRoles requires one of roles for the full method name
// ("/package.Service/Method").
func WithMethodRoles(method string, roles auth.RoleSet) GRPCAuthOption {
	return func(g *GRPCAuth) { g.rules[method] = roles }
}

// WithPublicMethods lets methods through without credentials.
func WithPublicMethods(methods ...string) GRPCAuthOption {
	return func(g *GRPCAuth) {
		for _, m := range methods {
			g.public[m] = struct{}{}
		}
	}
}

// NewGRPCAuth builds the interceptor set around gate.
func NewGRPCAuth(gate *auth.Gate, opts ...GRPCAuthOption) (*GRPCAuth, error) {
	if gate == nil {
		return nil, errors.New("httpapi: gate is required")
	}
	g := &GRPCAuth{
		gate:   gate,
		rules:  make(map[string]auth.RoleSet),
		public: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// UnaryInterceptor authorizes unary calls.
func (g *GRPCAuth) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authorizes streaming calls.
func (g *GRPCAuth) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

func (g *GRPCAuth) authorize(ctx context.Context, method string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if rid := firstValue(md, grpcRequestIDKey); rid != "" {
		ctx = audit.WithRequestID(ctx, rid)
	}
	if _, ok := g.public[method]; ok {
		return ctx, nil
	}
	roles, ok := g.rules[method]
	if !ok {
		obs.ObserveAuthDecision("grpc", auth.Outcome(auth.ErrInsufficientPermissions))
		_ = audit.LogEvent(ctx, "auth.rejected", map[string]any{
			"outcome": "no_rule",
			"method":  method,
		})
		return nil, status.Error(codes.PermissionDenied, "no access rule for method")
	}

	header := firstValue(md, grpcAuthMetadata)
	id, err := g.gate.Authorize(ctx, roles, header)
	obs.ObserveAuthDecision("grpc", auth.Outcome(err))
	if err != nil {
		return nil, g.reject(ctx, method, err)
	}

	ctx = auth.ContextWithIdentity(ctx, id)
	if token, err := auth.ExtractBearer(header); err == nil {
		ctx = auth.ContextWithToken(ctx, token)
	}
	return ctx, nil
}

// reject maps a gate error to Unauthenticated, PermissionDenied or Internal.
func (g *GRPCAuth) reject(ctx context.Context, method string, err error) error {
	var (
		authn *auth.AuthenticationError
		authz *auth.AuthorizationError
	)
	switch {
	case errors.As(err, &authn):
		_ = audit.LogEvent(ctx, "auth.rejected", map[string]any{"outcome": auth.Outcome(err), "method": method})
		return status.Error(codes.Unauthenticated, authn.Error())
	case errors.As(err, &authz):
		_ = audit.LogEvent(ctx, "auth.rejected", map[string]any{"outcome": auth.Outcome(err), "method": method})
		return status.Error(codes.PermissionDenied, authz.Error())
	default:
		obs.Error("auth gate failure", err, map[string]any{
			"request_id": audit.RequestIDFromContext(ctx),
			"method":     method,
		})
		return status.Error(codes.Internal, "authentication error")
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer answers grpc.health.v1 checks by pinging the session store.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	sessions Pinger
}

// NewHealthServer creates the health service.
func NewHealthServer(sessions Pinger) *HealthServer {
	return &HealthServer{sessions: sessions}
}

// Check reports SERVING when the session store answers a ping.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.sessions.Ping(ctx); err != nil {
		obs.SetReady(false)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewGRPCServer builds a server with the auth interceptors installed and the
// health service registered. Health checks require an authenticated caller.
func NewGRPCServer(gate *auth.Gate, sessions Pinger, opts ...GRPCAuthOption) (*grpc.Server, error) {
	base := []GRPCAuthOption{
		WithMethodRoles(healthCheckMethod, auth.AnyRole()),
		WithMethodRoles(healthWatchMethod, auth.AnyRole()),
	}
	ga, err := NewGRPCAuth(gate, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(ga.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(ga.StreamInterceptor()),
	)
	healthpb.RegisterHealthServer(server, NewHealthServer(sessions))
	return server, nil
}
