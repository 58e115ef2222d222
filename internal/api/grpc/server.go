// Package grpcapi serves the standard gRPC health protocol for the
// transcription and synthesis services.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-speech-roundtrip-service/internal/observability"
	"ai-speech-roundtrip-service/internal/observability/metrics"
)

// Service names reported through the health protocol.
const (
	ServiceTranscriber = "ai.speech.roundtrip.Transcriber"
	ServiceSynthesizer = "ai.speech.roundtrip.Synthesizer"
)

// Services lists every named service, in addition to the "" overall status.
var Services = []string{ServiceTranscriber, ServiceSynthesizer}

// Server wraps a gRPC server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a server with every service NOT_SERVING until SetServing is
// called. Calls are recorded in m.
func New(m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	for _, svc := range Services {
		hs.SetServingStatus(svc, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{grpc: g, health: hs}
}

// SetServing sets the status of service, or the overall status when service
// is empty.
func (s *Server) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// SetAllServing sets the overall status and every named service.
func (s *Server) SetAllServing(serving bool) {
	s.SetServing("", serving)
	for _, svc := range Services {
		s.SetServing(svc, serving)
	}
}

// Serve blocks serving lis.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return s.grpc.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops gracefully.
func (s *Server) Shutdown() {
	log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
