// Package middleware provides server interceptors that work with both the
// in-memory fabric and real gRPC servers.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryLogging creates an interceptor that logs unary calls using slog.
// It logs the start and end of each call, including duration and status.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		logger.InfoContext(ctx, "call started",
			slog.String("method", info.FullMethod),
		)

		res, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "call failed",
				slog.String("method", info.FullMethod),
				slog.String("code", status.Code(err).String()),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "call completed",
				slog.String("method", info.FullMethod),
				slog.Duration("duration", duration),
			)
		}

		return res, err
	}
}

// StreamLogging creates an interceptor that logs streaming calls using
// slog. The completion entry covers the whole stream lifetime.
func StreamLogging(logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		start := time.Now()

		logger.InfoContext(ctx, "stream started",
			slog.String("method", info.FullMethod),
		)

		err := handler(srv, ss)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "stream failed",
				slog.String("method", info.FullMethod),
				slog.String("code", status.Code(err).String()),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "stream completed",
				slog.String("method", info.FullMethod),
				slog.Duration("duration", duration),
			)
		}

		return err
	}
}
