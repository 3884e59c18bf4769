// Package grpc serves the standard gRPC health protocol for load balancers
// and orchestrators that probe over gRPC instead of HTTP.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-voice-chat/backend/pkg/logger"
)

// ServiceName is the service reported alongside the overall "" status
const ServiceName = "chat.Relay"

// Server wraps a grpc.Server exposing the health service
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *logger.Logger
}

// NewServer creates a server that starts out NOT_SERVING until the first
// health report arrives through SetHealthy.
func NewServer(log *logger.Logger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		log:        log,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.SetHealthy(false)
	return s
}

// SetHealthy mirrors the HTTP health checker's verdict. It matches the
// signature of health.Checker.OnChange.
func (s *Server) SetHealthy(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// ListenAndServe listens on :port and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
