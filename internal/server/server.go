// Package server exposes a ledger over gRPC as the skilltoken.v1.Registry
// service.
package server

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
}

// New listens on addr and registers the Registry service backed by l.
// Serve must be called to start accepting calls.
func New(addr string, obs *observability.Observability, l *ledger.Ledger, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if obs != nil {
		metrics = obs.Metrics
	}

	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			observability.UnaryServerInterceptor(metrics),
			UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			observability.StreamServerInterceptor(metrics),
			StreamServerInterceptor(),
		),
	}
	serverOpts = append(serverOpts, opts...)

	grpcServer := grpc.NewServer(serverOpts...)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(transport.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	transport.RegisterRegistryServer(grpcServer, &registryService{ledger: l})

	return &Server{
		grpcServer: grpcServer,
		listener:   lis,
		health:     hs,
	}, nil
}

func (s *Server) SetServingStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if s.health != nil {
		s.health.SetServingStatus("", status)
		s.health.SetServingStatus(transport.ServiceName, status)
	}
}

// Serve accepts connections until Stop. The health status flips to SERVING
// first.
func (s *Server) Serve() error {
	s.SetServingStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	return s.grpcServer.Serve(s.listener)
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop drains in-flight calls, forcing a hard stop when ctx expires.
// Open WatchEvents streams end only when their ledger subscription does, so
// callers stop ledger watches first or rely on the deadline.
func (s *Server) Stop(ctx context.Context) {
	s.SetServingStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("graceful stop timed out, forcing")
		s.grpcServer.Stop()
		<-done
	}
}

func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}
