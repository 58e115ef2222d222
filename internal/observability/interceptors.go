package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"ai-speech-roundtrip-service/internal/observability/metrics"
)

// UnaryServerInterceptor records every unary call (health Check,
// reflection) in m and logs it at debug level.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(m, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor records stream calls in m. Health Watch is the
// only long-lived stream the service serves.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observeCall(m, info.FullMethod, "stream", start, err)
		return err
	}
}

func observeCall(m *metrics.Metrics, method, callType string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err).String()
	m.RecordGRPCCall(method, callType, code, elapsed.Seconds())

	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("type", callType).
		Str("code", code).
		Dur("duration", elapsed).
		Msg("gRPC call")
}
