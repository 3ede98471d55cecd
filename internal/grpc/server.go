package grpc

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	pkglog "github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
)

// ServiceName is the name reported by the health service alongside the
// overall ("") status.
const ServiceName = "relay.Relay"

// Server exposes grpc.health.v1.Health for orchestrator health checks.
type Server struct {
	srv      *grpc.Server
	health   *health.Server
	listener net.Listener
}

// StartGRPCServer creates and starts the gRPC server in a background goroutine.
func StartGRPCServer(addr string, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(pkglog.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(pkglog.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("grpc server listening")
		if err := s.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc server error")
		}
	}()

	return &Server{srv: s, health: hs, listener: lis}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// MarkNotServing flips every status to NOT_SERVING. Watchers are notified.
func (s *Server) MarkNotServing() {
	s.health.Shutdown()
}

// Stop marks the service down and drains in-flight calls.
func (s *Server) Stop() {
	s.MarkNotServing()
	s.srv.GracefulStop()
}
