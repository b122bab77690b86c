package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWizard(t *testing.T, answers ...string) (*Config, string, error) {
	t.Helper()

	var out bytes.Buffer
	cfg, err := NewWizard(strings.NewReader(strings.Join(answers, "\n")+"\n"), &out).Run()
	return cfg, out.String(), err
}

func TestWizard_DefaultsOnBlankAnswers(t *testing.T) {
	cfg, _, err := runWizard(t, "", "", "", "", "", "", "")
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Backend.HostURL, cfg.Backend.HostURL)
	assert.Empty(t, cfg.Bot.URL)
	assert.Equal(t, def.Chat.UserName, cfg.Chat.UserName)
	assert.Equal(t, def.Chat.Greeting, cfg.Chat.Greeting)
	assert.Equal(t, def.Store.Driver, cfg.Store.Driver)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestWizard_ReasksInvalidAnswers(t *testing.T) {
	cfg, out, err := runWizard(t,
		"ftp://backend", "https://backend.example",
		"http://localhost:3979/api/messages",
		"Ada",
		"maybe", "n",
		"postgres", "sqlite",
		"y", "panel-secret",
		"loud", "debug",
	)
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example", cfg.Backend.HostURL)
	assert.Equal(t, "http://localhost:3979/api/messages", cfg.Bot.URL)
	assert.Equal(t, "Ada", cfg.Chat.UserName)
	assert.False(t, cfg.Chat.Greeting)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, "panel-secret", cfg.Gateway.SharedSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Equal(t, 4, strings.Count(out, "Error:"))
}

func TestWizard_GeneratesGatewaySecret(t *testing.T) {
	cfg, out, err := runWizard(t, "", "", "", "", "memory", "yes", "", "")
	require.NoError(t, err)

	require.True(t, cfg.Gateway.Enabled)
	assert.Len(t, cfg.Gateway.SharedSecret, 32)
	assert.Contains(t, out, "Generated shared secret: "+cfg.Gateway.SharedSecret)
}

func TestWizard_InputEndsEarly(t *testing.T) {
	var out bytes.Buffer
	_, err := NewWizard(strings.NewReader("https://backend.example\n"), &out).Run()
	assert.Error(t, err)
}
