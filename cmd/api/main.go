package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"secureshop.org/internal/auth"
	"secureshop.org/internal/config"
	"secureshop.org/internal/httpapi"
	"secureshop.org/internal/obs"
	"secureshop.org/internal/session"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const purgeInterval = 10 * time.Minute

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	sessions, closeSessions, err := session.Open(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatalf("session registry: %v", err)
	}

	codec, err := auth.NewJWTCodec(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		log.Fatalf("jwt codec: %v", err)
	}
	gate, err := auth.NewGate(codec, sessions)
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	api, err := httpapi.New(gate, sessions, codec, version,
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithTokenTTL(cfg.TokenTTL),
	)
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	if cfg.BootstrapAdmin != "" {
		bootCtx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
		err := bootstrapAdmin(bootCtx, sessions, codec, cfg.BootstrapAdmin, cfg.TokenTTL, os.Stderr)
		cancelBoot()
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting secureshop-api", map[string]any{
		"version":  version,
		"http":     cfg.HTTPAddr,
		"grpc":     cfg.GRPCAddr,
		"sessions": cfg.SessionBackend,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer, err = httpapi.NewGRPCServer(gate, sessions)
		if err != nil {
			log.Fatalf("grpc server: %v", err)
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pg, ok := sessions.(*session.PostgresRegistry); ok {
		go purgeExpired(ctx, pg)
	}

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := closeSessions(); err != nil {
		obs.Error("close session registry", err, nil)
	}
	obs.Info("stopped", nil)
}

// purgeExpired deletes lapsed session rows; IsValid already ignores them.
func purgeExpired(ctx context.Context, pg *session.PostgresRegistry) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.PurgeExpired(ctx)
			if err != nil {
				obs.Error("purge expired sessions", err, nil)
				continue
			}
			if n > 0 {
				obs.Info("purged expired sessions", map[string]any{"count": n})
			}
		}
	}
}
