package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "webchat.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "info"}}`), 0644))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(NewLoader(configPath), zerolog.Nop(), func(cfg *Config) {
		changes <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "debug"}}`), 0644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "webchat.json")

	changes := make(chan *Config, 1)
	w, err := NewWatcher(NewLoader(configPath), zerolog.Nop(), func(cfg *Config) {
		changes <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other.json"), []byte(`{}`), 0644))

	select {
	case <-changes:
		t.Fatal("unexpected reload for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewWatcherValidation(t *testing.T) {
	_, err := NewWatcher(nil, zerolog.Nop(), func(*Config) {})
	assert.Error(t, err)

	_, err = NewWatcher(NewLoader(filepath.Join(t.TempDir(), "x.json")), zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(NewLoader(filepath.Join(t.TempDir(), "x.json")), zerolog.Nop(), func(*Config) {})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
