package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/webchat/internal/observability"
	"github.com/harun/webchat/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const recordFileExt = ".json"

// FileStore keeps one JSON file per conversation id under a directory
type FileStore struct {
	dir        string
	logger     zerolog.Logger
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
	closed     bool
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".webchat", "chats")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}

	fs := &FileStore{
		dir:        dir,
		logger:     logger.With().Str("component", "file_store").Logger(),
		writeLocks: make(map[string]*sync.Mutex),
	}

	fs.logger.Info().Str("dir", dir).Msg("File record store initialized")
	return fs, nil
}

// Dir returns the directory records are stored in
func (fs *FileStore) Dir() string {
	return fs.dir
}

// recordPath escapes the id; generated ids contain '|'
func (fs *FileStore) recordPath(conversationID string) string {
	return filepath.Join(fs.dir, url.PathEscape(conversationID)+recordFileExt)
}

// writeLock returns the mutex serializing writes to one record file.
// Entries live as long as the store so holders never see a replaced lock.
func (fs *FileStore) writeLock(conversationID string) (*sync.Mutex, error) {
	fs.locksMu.Lock()
	defer fs.locksMu.Unlock()

	if fs.closed {
		return nil, ErrStoreClosed
	}
	if lock, ok := fs.writeLocks[conversationID]; ok {
		return lock, nil
	}
	lock := &sync.Mutex{}
	fs.writeLocks[conversationID] = lock
	return lock, nil
}

func (fs *FileStore) checkOpen() error {
	fs.locksMu.Lock()
	defer fs.locksMu.Unlock()
	if fs.closed {
		return ErrStoreClosed
	}
	return nil
}

func (fs *FileStore) Get(ctx context.Context, conversationID string) (*Record, error) {
	_, span := tracing.StartSpan(ctx, "webchat.session", "record.get",
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
	if err := fs.checkOpen(); err != nil {
		return nil, err
	}

	rec, err := fs.readFile(fs.recordPath(conversationID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			tracing.FailSpan(span, err)
		}
		return nil, err
	}
	return rec, nil
}

func (fs *FileStore) readFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

func (fs *FileStore) Put(ctx context.Context, rec *Record) error {
	cp, err := prepareRecord(rec, time.Now())
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "webchat.session", "record.put",
		attribute.String("conversation_id", cp.ConversationID),
		attribute.String("chat_mode", cp.ChatMode))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, fs.logger)
	start := time.Now()
	defer func() {
		observability.RecordRecordSave(time.Since(start))
	}()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	lock, err := fs.writeLock(cp.ConversationID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	path := fs.recordPath(cp.ConversationID)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		tracing.FailSpan(span, err)
		return fmt.Errorf("failed to replace record file: %w", err)
	}

	logger.Debug().
		Str("conversation_id", cp.ConversationID).
		Str("chat_mode", cp.ChatMode).
		Msg("Record saved")

	return nil
}

func (fs *FileStore) List(ctx context.Context) ([]*Record, error) {
	if err := fs.checkOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordFileExt) {
			continue
		}

		rec, err := fs.readFile(filepath.Join(fs.dir, entry.Name()))
		if err != nil {
			fs.logger.Warn().
				Str("file", entry.Name()).
				Err(err).
				Msg("Failed to load record, skipping")
			continue
		}
		records = append(records, rec)
	}

	sortByUpdated(records)
	return records, nil
}

func (fs *FileStore) Delete(ctx context.Context, conversationID string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}

	lock, err := fs.writeLock(conversationID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fs.recordPath(conversationID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record file: %w", err)
	}

	fs.logger.Debug().Str("conversation_id", conversationID).Msg("Record deleted")
	return nil
}

func (fs *FileStore) Close() error {
	fs.locksMu.Lock()
	defer fs.locksMu.Unlock()
	fs.closed = true
	return nil
}
