package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/webchat/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types
const (
	AuditSession  = "session"
	AuditSecurity = "security"
	AuditConfig   = "config"
)

// AuditEvent is one line of the audit trail
type AuditEvent struct {
	Type           string
	Timestamp      time.Time
	Actor          string
	Action         string
	Status         string
	ConversationID string
	Metadata       map[string]interface{}
	TraceID        string
}

// AuditLogger appends audit events as JSON lines
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	closer io.Closer
}

var (
	discardAudit = &AuditLogger{logger: zerolog.Nop()}
	auditInst    atomic.Pointer[AuditLogger]
)

// NewAuditLogger writes events to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: zerolog.New(w)}
}

// OpenAuditLog appends events to the file at path
func OpenAuditLog(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	a := NewAuditLogger(f)
	a.closer = f
	return a, nil
}

// Audit returns the process audit logger. Events are discarded until
// SetAuditLogger installs one.
func Audit() *AuditLogger {
	if a := auditInst.Load(); a != nil {
		return a
	}
	return discardAudit
}

// SetAuditLogger installs a as the process audit logger. nil restores the
// discarding default.
func SetAuditLogger(a *AuditLogger) {
	auditInst.Store(a)
}

// Record writes the event and mirrors it onto the current span
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
		))
	}
	if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("type", event.Type).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.Actor != "" {
		entry = entry.Str("actor", event.Actor)
	}
	if event.ConversationID != "" {
		entry = entry.Str("conversation_id", event.ConversationID)
	}
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}
	entry.Send()
}

// Close closes the underlying file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	a.logger = zerolog.Nop()
	return err
}

// RecordSessionAudit records the outcome of a session operation
func RecordSessionAudit(ctx context.Context, action, conversationID string, err error) {
	event := AuditEvent{
		Type:           AuditSession,
		Actor:          tracing.GetUserID(ctx),
		Action:         action,
		Status:         "success",
		ConversationID: conversationID,
	}
	if err != nil {
		event.Status = "failure"
		event.Metadata = map[string]interface{}{"error": err.Error()}
	}
	Audit().Record(ctx, event)
}

// RecordSecurityAudit records authentication decisions
func RecordSecurityAudit(ctx context.Context, action, actor, status string, metadata map[string]interface{}) {
	Audit().Record(ctx, AuditEvent{
		Type:     AuditSecurity,
		Actor:    actor,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordConfigAudit records applied configuration changes
func RecordConfigAudit(ctx context.Context, action string, metadata map[string]interface{}) {
	Audit().Record(ctx, AuditEvent{
		Type:     AuditConfig,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
