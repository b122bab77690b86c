package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir(), zerolog.Nop())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chats.db"), zerolog.Nop())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStores_PutGet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			rec := &Record{
				ConversationID: "abc123|conversation",
				ChatMode:       "conversation",
				User:           User{ID: "u1", Name: "User"},
			}
			require.NoError(t, store.Put(ctx, rec))

			got, err := store.Get(ctx, "abc123|conversation")
			require.NoError(t, err)
			assert.Equal(t, "abc123|conversation", got.ConversationID)
			assert.Equal(t, "conversation", got.ChatMode)
			assert.Equal(t, User{ID: "u1", Name: "User"}, got.User)
			assert.False(t, got.CreatedAt.IsZero())
			assert.False(t, got.UpdatedAt.IsZero())

			// caller's record is not mutated by timestamp filling
			assert.True(t, rec.CreatedAt.IsZero())
		})
	}
}

func TestStores_GetMissing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			_, err := store.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_LastWriteWins(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, &Record{ConversationID: "c1", ChatMode: "conversation"}))
			require.NoError(t, store.Put(ctx, &Record{ConversationID: "c1", ChatMode: "other"}))

			got, err := store.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, "other", got.ChatMode)

			all, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStores_ListOrderAndDelete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, store.Put(ctx, &Record{ConversationID: "old", UpdatedAt: base}))
			require.NoError(t, store.Put(ctx, &Record{ConversationID: "new", UpdatedAt: base.Add(time.Hour)}))

			all, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "new", all[0].ConversationID)
			assert.Equal(t, "old", all[1].ConversationID)

			require.NoError(t, store.Delete(ctx, "old"))
			require.NoError(t, store.Delete(ctx, "old"))

			_, err = store.Get(ctx, "old")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_RejectInvalidIDs(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			assert.Error(t, store.Put(ctx, &Record{ConversationID: "../escape"}))
			assert.Error(t, store.Put(ctx, nil))
			_, err := store.Get(ctx, "")
			assert.Error(t, err)
			assert.Error(t, store.Delete(ctx, "a/b"))
		})
	}
}

func TestStores_ClosedStore(t *testing.T) {
	for _, name := range []string{"memory", "sqlite", "file"} {
		factory := storeFactories()[name]
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			require.NoError(t, store.Close())

			_, err := store.Get(context.Background(), "c1")
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, store.Put(context.Background(), &Record{ConversationID: "c1"}), ErrStoreClosed)
			_, err = store.List(context.Background())
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, store.Delete(context.Background(), "c1"), ErrStoreClosed)
			assert.NoError(t, store.Close())
		})
	}
}

func TestStores_ConcurrentPuts(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Put(ctx, &Record{ConversationID: "shared", ChatMode: "conversation"}))
				}()
			}
			wg.Wait()

			got, err := store.Get(ctx, "shared")
			require.NoError(t, err)
			assert.Equal(t, "conversation", got.ChatMode)
		})
	}
}

func TestValidateConversationID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		shouldErr bool
	}{
		{"generated id", "V1StGXR8_Z5jdHi6B-myT|conversation", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversationID(tt.id)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileStore_EscapesPipeInFileName(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), &Record{ConversationID: "tok|conversation"}))

	_, err = os.Stat(filepath.Join(dir, "tok%7Cconversation.json"))
	assert.NoError(t, err)
}

func TestFileStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Record{ConversationID: "good"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0600))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ConversationID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chats.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, &Record{ConversationID: "c1", ChatMode: "conversation"}))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "conversation", got.ChatMode)
}

func TestOpen(t *testing.T) {
	s, err := Open("", "", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(DriverFile, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(DriverSQLite, filepath.Join(t.TempDir(), "x.db"), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = Open("redis", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestFileStore_DeleteKeepsWriteLock(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer fs.Close()
	ctx := context.Background()

	before, err := fs.writeLock("c1")
	require.NoError(t, err)
	require.NoError(t, fs.Put(ctx, &Record{ConversationID: "c1"}))
	require.NoError(t, fs.Delete(ctx, "c1"))
	after, err := fs.writeLock("c1")
	require.NoError(t, err)
	assert.Same(t, before, after)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, fs.Put(ctx, &Record{ConversationID: "c1", ChatMode: "conversation"}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, fs.Delete(ctx, "c1"))
		}()
	}
	wg.Wait()

	require.NoError(t, fs.Put(ctx, &Record{ConversationID: "c1", ChatMode: "conversation"}))
	got, err := fs.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "conversation", got.ChatMode)

	matches, err := filepath.Glob(filepath.Join(fs.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
