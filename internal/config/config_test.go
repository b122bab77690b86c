package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:3000", cfg.Backend.HostURL)
	assert.Equal(t, 30, cfg.Backend.Timeout)
	assert.Equal(t, "conversation", cfg.Chat.Mode)
	assert.Equal(t, "public", cfg.Chat.ChannelServiceType)
	assert.Equal(t, "User", cfg.Chat.UserName)
	assert.True(t, cfg.Chat.Greeting)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "@daily", cfg.Store.CleanupSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Gateway.Enabled)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.DataDir = "/tmp/webchat"
		return cfg
	}

	t.Run("defaults with data dir are valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing backend host", func(t *testing.T) {
		cfg := valid()
		cfg.Backend.HostURL = " "
		assert.ErrorContains(t, cfg.Validate(), "host_url")
	})

	t.Run("chat mode with separator", func(t *testing.T) {
		cfg := valid()
		cfg.Chat.Mode = "conv|ersation"
		assert.ErrorContains(t, cfg.Validate(), "must not contain")
	})

	t.Run("unknown store driver", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Driver = "redis"
		assert.ErrorContains(t, cfg.Validate(), "invalid store driver")
	})

	t.Run("file store without any path", func(t *testing.T) {
		cfg := valid()
		cfg.DataDir = ""
		cfg.Store.Path = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("memory store needs no path", func(t *testing.T) {
		cfg := valid()
		cfg.DataDir = ""
		cfg.Store.Driver = "memory"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("gateway requires shared secret", func(t *testing.T) {
		cfg := valid()
		cfg.Gateway.Enabled = true
		assert.ErrorContains(t, cfg.Validate(), "shared_secret")

		cfg.Gateway.SharedSecret = "s3cret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("gateway port range", func(t *testing.T) {
		cfg := valid()
		cfg.Gateway.Enabled = true
		cfg.Gateway.SharedSecret = "s3cret"
		cfg.Gateway.Port = 70000
		assert.ErrorContains(t, cfg.Validate(), "invalid gateway port")
	})
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.MsaPassword = "hunter2"
	cfg.Gateway.SharedSecret = "shared"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "shared\"")
	assert.Contains(t, out, `"msa_password": "***"`)

	// the receiver is not modified
	assert.Equal(t, "hunter2", cfg.Backend.MsaPassword)
}
