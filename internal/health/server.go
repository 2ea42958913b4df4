// Package health exposes the standard gRPC health service for orchestrators.
package health

import (
	"context"
	"errors"
	"log"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"collab-service/internal/observability"
)

// Checker probes one dependency. A nil error means serving.
type Checker func(ctx context.Context) error

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checkers map[string]Checker
}

func NewServer(checkers map[string]Checker) *Server {
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return &Server{grpc: gs, health: hs, checkers: checkers}
}

// Refresh runs every checker and records the overall and per-dependency status.
func (s *Server) Refresh(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checkers {
		status := healthpb.HealthCheckResponse_SERVING
		if err := check(ctx); err != nil {
			log.Printf("health check %s failed: %v", name, err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			healthy = false
		}
		s.health.SetServingStatus(name, status)
	}
	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	return healthy
}

// Serve blocks until lis fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
