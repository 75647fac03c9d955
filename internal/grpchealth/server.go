// Package grpchealth exposes the standard gRPC health service, reporting
// SERVING while the chat store answers pings.
package grpchealth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health entry for the chat API.
const ServiceName = "hubdesk.Support"

const pingTimeout = 2 * time.Second

// Pinger reports dependency reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a gRPC server with a health service driven by periodic probes.
type Server struct {
	srv      *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
}

// New creates a health server probing pinger every interval.
func New(pinger Pinger, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs, pinger: pinger, interval: interval}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Probe pings the dependency once and updates the serving status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		slog.Warn("gRPC health probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.set(status)
	return status
}

// Serve probes immediately, then serves on lis until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.srv.GracefulStop()
				return
			case <-ticker.C:
				s.Probe(ctx)
			}
		}
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc health serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}
