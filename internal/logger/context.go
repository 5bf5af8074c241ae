package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey struct{}

type requestIDKey struct{}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID attaches a fresh request ID to the context logger and
// returns both the enriched context and the ID for response headers.
func WithRequestID(ctx context.Context, base *zap.Logger) (context.Context, string) {
	id := uuid.NewString()
	l := base.With(zap.String("request_id", id))
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return ContextWithLogger(ctx, l), id
}

// RequestIDFromContext returns the request ID set by WithRequestID ("" when absent).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
