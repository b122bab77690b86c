package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// OperationKey is the context key for the session operation (bootstrap, restart)
	OperationKey ContextKey = "operation"
	// ConversationIDKey is the context key for the conversation id
	ConversationIDKey ContextKey = "conversation_id"
	// UserIDKey is the context key for the local chat user id
	UserIDKey ContextKey = "user_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID        string
	Operation      string
	ConversationID string
	UserID         string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// WithConversationID adds a conversation id to the context
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

// WithUserID adds a user id to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetOperation retrieves the operation name from the context
func GetOperation(ctx context.Context) string {
	return stringValue(ctx, OperationKey)
}

// GetConversationID retrieves the conversation id from the context
func GetConversationID(ctx context.Context) string {
	return stringValue(ctx, ConversationIDKey)
}

// GetUserID retrieves the user id from the context
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:        GetTraceID(ctx),
		Operation:      GetOperation(ctx),
		ConversationID: GetConversationID(ctx),
		UserID:         GetUserID(ctx),
	}
}

// NewOperationContext starts a traced session operation. An existing trace ID is kept.
func NewOperationContext(ctx context.Context, operation string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithOperation(ctx, operation)
}
