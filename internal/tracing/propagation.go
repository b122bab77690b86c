package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.Operation != "" {
		lc = lc.Str("operation", tc.Operation)
	}
	if tc.ConversationID != "" {
		lc = lc.Str("conversation_id", tc.ConversationID)
	}
	if tc.UserID != "" {
		lc = lc.Str("user_id", tc.UserID)
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// Detach returns a background context carrying the same tracing values.
// Used for cleanup work that must outlive a cancelled request.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()
	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.Operation != "" {
		out = WithOperation(out, tc.Operation)
	}
	if tc.ConversationID != "" {
		out = WithConversationID(out, tc.ConversationID)
	}
	if tc.UserID != "" {
		out = WithUserID(out, tc.UserID)
	}
	return out
}
