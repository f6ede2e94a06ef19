package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"secureshop.org/internal/auth"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, server *grpc.Server) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

func withToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func TestGRPCHealthRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	server, err := NewGRPCServer(env.gate, env.sessions)
	if err != nil {
		t.Fatalf("NewGRPCServer: %v", err)
	}
	conn, cleanup := startBufGRPC(t, server)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	token := env.login(t, "cust-1", auth.RoleCustomer)
	resp, err := client.Check(withToken(ctx, token), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %v", resp.GetStatus())
	}

	if err := env.sessions.Invalidate(context.Background(), "cust-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	_, err = client.Check(withToken(ctx, token), &healthpb.HealthCheckRequest{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated after revocation, got %v", err)
	}
	if st, _ := status.FromError(err); st.Message() != "invalid session" {
		t.Fatalf("unexpected message %q", st.Message())
	}
}

func TestGRPCHealthReportsNotServing(t *testing.T) {
	srv := NewHealthServer(brokenSessions{err: errors.New("down")})
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", resp.GetStatus())
	}
	if _, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other"}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound for unknown service, got %v", err)
	}
}

func TestUnaryInterceptorRules(t *testing.T) {
	env := newTestEnv(t)
	ga, err := NewGRPCAuth(env.gate,
		WithMethodRoles("/shop.Orders/Cancel", auth.Roles(auth.RoleAdmin, auth.RoleClerk)),
		WithPublicMethods("/shop.Catalog/List"),
	)
	if err != nil {
		t.Fatalf("NewGRPCAuth: %v", err)
	}
	customer := env.login(t, "cust-1", auth.RoleCustomer)
	clerk := env.login(t, "clerk-1", auth.RoleClerk)
	interceptor := ga.UnaryInterceptor()

	var seen auth.Identity
	handler := func(ctx context.Context, req any) (any, error) {
		seen, _ = auth.IdentityFromContext(ctx)
		return "ok", nil
	}
	incoming := func(token string) context.Context {
		md := metadata.MD{}
		if token != "" {
			md = metadata.Pairs("authorization", "Bearer "+token)
		}
		return metadata.NewIncomingContext(context.Background(), md)
	}

	cases := []struct {
		name   string
		method string
		token  string
		want   codes.Code
	}{
		{"public without token", "/shop.Catalog/List", "", codes.OK},
		{"no rule", "/shop.Orders/Delete", clerk, codes.PermissionDenied},
		{"missing token", "/shop.Orders/Cancel", "", codes.Unauthenticated},
		{"customer denied", "/shop.Orders/Cancel", customer, codes.PermissionDenied},
		{"clerk allowed", "/shop.Orders/Cancel", clerk, codes.OK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = auth.Identity{}
			resp, err := interceptor(incoming(tc.token), nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if status.Code(err) != tc.want {
				t.Fatalf("code = %v, want %v (err %v)", status.Code(err), tc.want, err)
			}
			if tc.want != codes.OK {
				if resp != nil {
					t.Fatalf("handler result leaked on rejection")
				}
				return
			}
			if resp != "ok" {
				t.Fatalf("unexpected response %v", resp)
			}
			if tc.token != "" && seen.Subject != "clerk-1" {
				t.Fatalf("identity not attached: %+v", seen)
			}
		})
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestStreamInterceptorAttachesIdentity(t *testing.T) {
	env := newTestEnv(t)
	ga, err := NewGRPCAuth(env.gate, WithMethodRoles("/shop.Orders/Watch", auth.AnyRole()))
	if err != nil {
		t.Fatalf("NewGRPCAuth: %v", err)
	}
	token := env.login(t, "admin-1", auth.RoleAdmin)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))

	var seen auth.Identity
	err = ga.StreamInterceptor()(nil, &fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/shop.Orders/Watch"},
		func(srv any, ss grpc.ServerStream) error {
			seen, _ = auth.IdentityFromContext(ss.Context())
			return nil
		})
	if err != nil {
		t.Fatalf("stream interceptor: %v", err)
	}
	if seen.Subject != "admin-1" || seen.Role != auth.RoleAdmin {
		t.Fatalf("unexpected identity %+v", seen)
	}

	err = ga.StreamInterceptor()(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/shop.Orders/Watch"},
		func(any, grpc.ServerStream) error {
			t.Fatal("handler must not run")
			return nil
		})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
