// Package grpc serves grpc.health.v1 for the control plane so that
// orchestrators can check readiness without going through the REST API.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/utils"
)

// ServiceName is the health service name reported alongside the overall ""
const ServiceName = "unistor.v1.ControlPlane"

// ReadinessFunc reports whether the control plane can serve allocations
type ReadinessFunc func() bool

// HealthServer mirrors GET /ready into the standard gRPC health protocol
type HealthServer struct {
	address    string
	grpcServer *grpc.Server
	health     *health.Server
	ready      ReadinessFunc
	interval   time.Duration
	logger     *logging.Logger
}

// NewHealthServer creates a health server; Start listens on address
func NewHealthServer(address string, ready ReadinessFunc, logger *logging.Logger) *HealthServer {
	s := &HealthServer{
		address:  address,
		health:   health.NewServer(),
		ready:    ready,
		interval: utils.HealthRefreshInterval,
		logger:   logger.With("component", "grpc.health"),
	}

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	return s
}

// Refresh evaluates readiness once and publishes the status
func (s *HealthServer) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready == nil || s.ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Start listens on the configured address and serves until ctx is done
func (s *HealthServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.logger.Info("gRPC health server starting", "address", s.address)
	return s.Serve(ctx, listener)
}

// Serve serves on lis, refreshing readiness every interval, until ctx is done
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	last := s.Refresh()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("gRPC server error: %w", err)
			}
			return nil
		case <-ticker.C:
			if status := s.Refresh(); status != last {
				s.logger.Info("Serving status changed", "status", status.String())
				last = status
			}
		}
	}
}

// Stop marks every service NOT_SERVING and stops gracefully
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
