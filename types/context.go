package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID        contextKey = "trace_id"
	keyConversationID contextKey = "conversation_id"
	keyInvocationID   contextKey = "invocation_id"
	keyRequestID      contextKey = "request_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithConversationID adds the host conversation ID to context.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyConversationID, id)
}

// ConversationID extracts the host conversation ID from context.
func ConversationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyConversationID).(string)
	return v, ok && v != ""
}

// WithInvocationID adds the active skill invocation ID to context.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyInvocationID, id)
}

// InvocationID extracts the active skill invocation ID from context.
func InvocationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyInvocationID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}
