package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type for context keys defined in this package
type contextKey string

// traceIDContextKey is the key for storing the trace ID in a context
const traceIDContextKey contextKey = "trace_id"

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.NewString()
}

// TraceIDFromContext retrieves the trace ID from the context, or an
// empty string when none is set.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}
