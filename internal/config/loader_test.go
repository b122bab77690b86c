package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "conversation", cfg.Chat.Mode)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "webchat.json")

		testConfig := `{
			"backend": {"host_url": "http://composer.local:5000", "timeout": 5},
			"bot": {"url": "https://bot.example/api/messages"},
			"store": {"driver": "sqlite"},
			"data_dir": "` + filepath.ToSlash(tmpDir) + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "http://composer.local:5000", cfg.Backend.HostURL)
		assert.Equal(t, 5, cfg.Backend.Timeout)
		assert.Equal(t, "https://bot.example/api/messages", cfg.Bot.URL)
		assert.Equal(t, "sqlite", cfg.Store.Driver)
		assert.Equal(t, filepath.Join(tmpDir, "chats.db"), cfg.Store.Path)

		// untouched sections keep their defaults
		assert.Equal(t, "conversation", cfg.Chat.Mode)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("file store path defaults under data dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "webchat.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"data_dir": "`+filepath.ToSlash(tmpDir)+`"}`), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "chats", filepath.Base(cfg.Store.Path))
	})

	t.Run("environment overrides file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "webchat.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"backend": {"host_url": "http://from-file:3000"}}`), 0644))

		t.Setenv("WEBCHAT_BACKEND_HOST_URL", "http://from-env:3000")
		t.Setenv("WEBCHAT_LOGGING_LEVEL", "debug")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "http://from-env:3000", cfg.Backend.HostURL)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "webchat.json")

	cfg := DefaultConfig()
	cfg.Backend.HostURL = "http://saved:3000"
	cfg.Bot.URL = "https://bot.example"
	cfg.DataDir = tmpDir

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://saved:3000", loaded.Backend.HostURL)
	assert.Equal(t, "https://bot.example", loaded.Bot.URL)
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		assert.Equal(t, "/custom/webchat.json", NewLoader("/custom/webchat.json").GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		path := NewLoader("").GetConfigPath()
		assert.Contains(t, path, ".webchat")
		assert.Contains(t, path, "webchat.json")
	})
}
