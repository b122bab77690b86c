package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no record exists for a conversation id
var ErrNotFound = errors.New("chat record not found")

// ErrStoreClosed is returned by operations on a closed store
var ErrStoreClosed = errors.New("record store closed")

// User is the participant a chat record was created for
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is the persisted state of one conversation
type Record struct {
	ConversationID string    `json:"conversationId"`
	ChatMode       string    `json:"chatMode"`
	User           User      `json:"user"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Clone returns a copy safe to hand to callers
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Store persists chat records keyed by conversation id
type Store interface {
	// Get returns the record for conversationID or ErrNotFound
	Get(ctx context.Context, conversationID string) (*Record, error)
	// Put creates or overwrites the record for rec.ConversationID
	Put(ctx context.Context, rec *Record) error
	// List returns all records, most recently updated first
	List(ctx context.Context) ([]*Record, error)
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, conversationID string) error
	Close() error
}

// Store drivers
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open creates the store selected by driver
func Open(driver, path string, logger zerolog.Logger) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(path, logger)
	case DriverSQLite:
		return NewSQLiteStore(path, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// ValidateConversationID rejects ids that are unsafe as storage keys
func ValidateConversationID(conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	if strings.Contains(conversationID, "..") {
		return fmt.Errorf("conversation id cannot contain '..'")
	}
	if strings.ContainsAny(conversationID, "/\\") {
		return fmt.Errorf("conversation id cannot contain path separators")
	}
	if strings.Contains(conversationID, "\x00") {
		return fmt.Errorf("conversation id cannot contain null bytes")
	}
	return nil
}

// prepareRecord validates rec and fills missing timestamps
func prepareRecord(rec *Record, now time.Time) (*Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}
	if err := ValidateConversationID(rec.ConversationID); err != nil {
		return nil, err
	}
	cp := rec.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	return cp, nil
}

func sortByUpdated(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].ConversationID < records[j].ConversationID
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
}
