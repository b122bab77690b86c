package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanup(t *testing.T) {
	store := NewMemoryStore()

	cleanup, err := NewCleanup(store, 7*24*time.Hour, "0 3 * * *", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cleanup.Retention())

	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 0, 0, 0, time.Local), cleanup.Next(from))
}

func TestNewCleanup_Defaults(t *testing.T) {
	cleanup, err := NewCleanup(NewMemoryStore(), 0, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRetention, cleanup.Retention())
}

func TestNewCleanup_InvalidSchedule(t *testing.T) {
	_, err := NewCleanup(NewMemoryStore(), time.Hour, "every tuesday", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewCleanup(nil, time.Hour, "", zerolog.Nop())
	assert.Error(t, err)
}

func TestCleanupNow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, &Record{ConversationID: "fresh", UpdatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Put(ctx, &Record{ConversationID: "stale", UpdatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Put(ctx, &Record{ConversationID: "active", UpdatedAt: now.Add(-72 * time.Hour)}))

	cleanup, err := NewCleanup(store, 24*time.Hour, "@hourly", zerolog.Nop())
	require.NoError(t, err)
	cleanup.now = func() time.Time { return now }
	cleanup.Skip = func(id string) bool { return id == "active" }

	stats, err := cleanup.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_records"])
	assert.Equal(t, 2, stats["eligible_for_cleanup"])

	deleted, err := cleanup.CleanupNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "active")
	assert.NoError(t, err)
}

func TestCleanupStartStop(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &Record{ConversationID: "stale", UpdatedAt: time.Now().Add(-90 * 24 * time.Hour)}))

	cleanup, err := NewCleanup(store, 24*time.Hour, "@daily", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, cleanup.Start())
	assert.True(t, cleanup.IsRunning())
	assert.Error(t, cleanup.Start())

	// the immediate pass removes the stale record
	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, "stale")
		return err == ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, cleanup.Stop())
	assert.False(t, cleanup.IsRunning())
	assert.Error(t, cleanup.Stop())
}
