package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/webchat/internal/observability"
	"github.com/harun/webchat/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const sqliteRecordsSchemaV1 = `
CREATE TABLE IF NOT EXISTS chat_records (
    conversation_id TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS chat_records_updated ON chat_records(updated_at_ms);
`

// SQLiteStore persists one JSON payload per conversation row
type SQLiteStore struct {
	mu     sync.RWMutex
	dsn    string
	db     *sql.DB
	logger zerolog.Logger
	closed bool
}

// NewSQLiteStore opens or creates the database at dsn
func NewSQLiteStore(dsn string, logger zerolog.Logger) (*SQLiteStore, error) {
	observability.EnsureRegistered()

	if dsn == "" {
		return nil, fmt.Errorf("sqlite record store: empty dsn")
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		dsn:    dsn,
		db:     db,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info().Str("dsn", dsn).Msg("SQLite record store initialized")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(sqliteRecordsSchemaV1); err != nil {
		return fmt.Errorf("sqlite record store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureOpen() error {
	if s.closed || s.db == nil {
		return ErrStoreClosed
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*Record, error) {
	ctx, span := tracing.StartSpan(ctx, "webchat.session", "record.get",
		attribute.String("conversation_id", conversationID))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordRecordLoad(time.Since(start))
	}()

	if err := ValidateConversationID(conversationID); err != nil {
		tracing.FailSpan(span, err)
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM chat_records WHERE conversation_id = ?`, conversationID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("failed to query record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("failed to decode record %q: %w", conversationID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	cp, err := prepareRecord(rec, time.Now())
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "webchat.session", "record.put",
		attribute.String("conversation_id", cp.ConversationID),
		attribute.String("chat_mode", cp.ChatMode))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordRecordSave(time.Since(start))
	}()

	payload, err := json.Marshal(cp)
	if err != nil {
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO chat_records (conversation_id, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
    payload_json = excluded.payload_json,
    updated_at_ms = excluded.updated_at_ms
`, cp.ConversationID, string(payload), cp.UpdatedAt.UnixMilli())
	if err != nil {
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	s.logger.Debug().Str("conversation_id", cp.ConversationID).Msg("Record saved")
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, payload_json FROM chat_records ORDER BY updated_at_ms DESC, conversation_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []*Record{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			s.logger.Warn().Str("conversation_id", id).Err(err).Msg("Failed to decode record, skipping")
			continue
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortByUpdated(records)
	return records, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_records WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
