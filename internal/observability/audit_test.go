package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/webchat/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAuditLines(t *testing.T, raw string) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestAudit_DefaultDiscards(t *testing.T) {
	SetAuditLogger(nil)
	assert.NotPanics(t, func() {
		RecordConfigAudit(context.Background(), "log_level", nil)
	})
	assert.Same(t, discardAudit, Audit())
}

func TestRecordSessionAudit(t *testing.T) {
	var buf bytes.Buffer
	SetAuditLogger(NewAuditLogger(&buf))
	t.Cleanup(func() { SetAuditLogger(nil) })

	ctx := tracing.WithTraceID(tracing.WithUserID(context.Background(), "u-1"), "trace-7")
	RecordSessionAudit(ctx, "bootstrap", "c1", nil)
	RecordSessionAudit(ctx, "restart", "c1", errors.New("backend unavailable"))

	lines := decodeAuditLines(t, buf.String())
	require.Len(t, lines, 2)

	assert.Equal(t, AuditSession, lines[0]["type"])
	assert.Equal(t, "bootstrap", lines[0]["action"])
	assert.Equal(t, "success", lines[0]["status"])
	assert.Equal(t, "u-1", lines[0]["actor"])
	assert.Equal(t, "c1", lines[0]["conversation_id"])
	assert.Equal(t, "trace-7", lines[0]["trace_id"])
	assert.NotContains(t, lines[0], "metadata")

	assert.Equal(t, "failure", lines[1]["status"])
	assert.Equal(t, map[string]interface{}{"error": "backend unavailable"}, lines[1]["metadata"])
}

func TestRecordSecurityAudit(t *testing.T) {
	var buf bytes.Buffer
	SetAuditLogger(NewAuditLogger(&buf))
	t.Cleanup(func() { SetAuditLogger(nil) })

	RecordSecurityAudit(context.Background(), "gateway.auth", "client-1", "failure", map[string]interface{}{"ip": "127.0.0.1"})

	lines := decodeAuditLines(t, buf.String())
	require.Len(t, lines, 1)
	assert.Equal(t, AuditSecurity, lines[0]["type"])
	assert.Equal(t, "client-1", lines[0]["actor"])
	assert.NotContains(t, lines[0], "conversation_id")
}

func TestOpenAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "webchat-audit.jsonl")

	a, err := OpenAuditLog(path)
	require.NoError(t, err)
	a.Record(context.Background(), AuditEvent{Type: AuditConfig, Action: "log_level", Status: "success"})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	a.Record(context.Background(), AuditEvent{Type: AuditConfig, Action: "after_close", Status: "success"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeAuditLines(t, string(data))
	require.Len(t, lines, 1)
	assert.Equal(t, "log_level", lines[0]["action"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
