// ============================================================================
// Ringmaster Status Server - gRPC health endpoint
// ============================================================================
//
// Package: internal/server
// File: server.go
// Function: lets supervisors probe a running competition with the standard
// grpc.health.v1 protocol (grpc_health_probe, Kubernetes gRPC probes)
//
// Service states:
//   ""                        overall process health
//   ringmaster.Competition    SERVING while games are being dispatched,
//                             NOT_SERVING once the competition is finished
//                             or stopped
//
// ============================================================================

package server

import (
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CompetitionService is the health service name reporting competition state.
const CompetitionService = "ringmaster.Competition"

// Server wraps a gRPC server exposing the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server

	mu      sync.Mutex
	stopped bool
}

// NewServer creates a server with the health service registered.
// The competition starts out NOT_SERVING.
func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(CompetitionService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing reports whether the competition is dispatching games.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CompetitionService, status)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// ListenAndServe listens on the TCP port and serves.
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return s.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains open RPCs. It is safe to
// call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.health.Shutdown()
	s.grpc.GracefulStop()
}
