package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the webchat configuration
type Config struct {
	// Conversation backend
	Backend BackendConfig `json:"backend" mapstructure:"backend"`

	// Bot runtime
	Bot BotConfig `json:"bot" mapstructure:"bot"`

	// Chat defaults
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// DirectLine stream settings
	DirectLine DirectLineConfig `json:"directline" mapstructure:"directline"`

	// Record store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BackendConfig holds the conversation/DirectLine provisioning service settings
type BackendConfig struct {
	HostURL     string `json:"host_url" mapstructure:"host_url"`
	Timeout     int    `json:"timeout" mapstructure:"timeout"` // seconds
	MsaAppID    string `json:"msa_app_id" mapstructure:"msa_app_id"`
	MsaPassword string `json:"msa_password" mapstructure:"msa_password"`
}

// BotConfig holds the bot runtime settings
type BotConfig struct {
	URL string `json:"url" mapstructure:"url"`
}

// ChatConfig holds chat session defaults
type ChatConfig struct {
	Mode               string `json:"mode" mapstructure:"mode"`
	ChannelServiceType string `json:"channel_service_type" mapstructure:"channel_service_type"` // public, azureusgovernment
	UserName           string `json:"user_name" mapstructure:"user_name"`
	Greeting           bool   `json:"greeting" mapstructure:"greeting"`
}

// DirectLineConfig holds stream connection settings
type DirectLineConfig struct {
	DialTimeout    int `json:"dial_timeout" mapstructure:"dial_timeout"` // seconds
	ActivityBuffer int `json:"activity_buffer" mapstructure:"activity_buffer"`
}

// StoreConfig holds chat record persistence settings
type StoreConfig struct {
	Driver          string `json:"driver" mapstructure:"driver"` // memory, file, sqlite
	Path            string `json:"path" mapstructure:"path"`
	RetentionDays   int    `json:"retention_days" mapstructure:"retention_days"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`

	// MaxSizeMB > 0 rotates File at that size
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
	AuditFile  string `json:"audit_file" mapstructure:"audit_file"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
	TickInterval int    `json:"tick_interval" mapstructure:"tick_interval"` // seconds
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			HostURL: "http://localhost:3000",
			Timeout: 30,
		},
		Chat: ChatConfig{
			Mode:               "conversation",
			ChannelServiceType: "public",
			UserName:           "User",
			Greeting:           true,
		},
		DirectLine: DirectLineConfig{
			DialTimeout:    10,
			ActivityBuffer: 64,
		},
		Store: StoreConfig{
			Driver:          "file",
			RetentionDays:   30,
			CleanupSchedule: "@daily",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Enabled:      false,
			Port:         8080,
			Host:         "127.0.0.1",
			TickInterval: 30,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Backend.MsaPassword != "" {
		masked.Backend.MsaPassword = "***"
	}
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.HostURL) == "" {
		return fmt.Errorf("backend host_url is required")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must be >= 0")
	}

	if strings.TrimSpace(c.Chat.Mode) == "" {
		return fmt.Errorf("chat mode is required")
	}
	if strings.Contains(c.Chat.Mode, "|") {
		return fmt.Errorf("chat mode %q must not contain '|'", c.Chat.Mode)
	}

	switch c.Store.Driver {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" && c.DataDir == "" {
			return fmt.Errorf("store path or data_dir is required for %s store", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be: memory, file, sqlite)", c.Store.Driver)
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging max_size_mb and max_age_days must be >= 0")
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
		}
		if c.Gateway.SharedSecret == "" {
			return fmt.Errorf("gateway shared_secret is required when gateway is enabled")
		}
	}

	return nil
}
