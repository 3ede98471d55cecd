package log

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataKeyRequestID = "x-request-id"

// FieldHealthService is the service name a health check asked about.
const FieldHealthService = "health_service"

// UnaryServerInterceptor logs health checks. Orchestrators poll every few
// seconds, so answered checks go to debug and anything else to warn.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		child := callLogger(ctx, logger, info.FullMethod, req)
		resp, err := handler(WithLogger(ctx, child), req)
		logCall(child, start, err, "health check")
		return resp, err
	}
}

// StreamServerInterceptor logs health Watch streams when they end. A client
// hanging up surfaces as Canceled and is not a failure.
func StreamServerInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		child := callLogger(ss.Context(), logger, info.FullMethod, nil)
		err := handler(srv, ss)
		logCall(child, start, err, "health watch ended")
		return err
	}
}

func callLogger(ctx context.Context, logger zerolog.Logger, method string, req interface{}) zerolog.Logger {
	c := logger.With().
		Str(FieldRequestID, requestIDFromMD(ctx)).
		Str(FieldGRPCMethod, method)
	if r, ok := req.(*healthpb.HealthCheckRequest); ok {
		c = c.Str(FieldHealthService, r.GetService())
	}
	return c.Logger()
}

func logCall(l zerolog.Logger, start time.Time, err error, msg string) {
	code := status.Code(err)
	l.WithLevel(callLevel(code)).
		Str(FieldGRPCCode, code.String()).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
		Err(err).
		Msg(msg)
}

func callLevel(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return zerolog.DebugLevel
	default:
		return zerolog.WarnLevel
	}
}

func requestIDFromMD(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.New().String()
}
