package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "WEBCHAT"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and WEBCHAT_* environment variables
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".webchat")
	}

	if cfg.Store.Path == "" {
		switch cfg.Store.Driver {
		case "file":
			cfg.Store.Path = filepath.Join(cfg.DataDir, "chats")
		case "sqlite":
			cfg.Store.Path = filepath.Join(cfg.DataDir, "chats.db")
		}
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend.host_url", cfg.Backend.HostURL)
	v.SetDefault("backend.timeout", cfg.Backend.Timeout)
	v.SetDefault("backend.msa_app_id", cfg.Backend.MsaAppID)
	v.SetDefault("backend.msa_password", cfg.Backend.MsaPassword)
	v.SetDefault("bot.url", cfg.Bot.URL)
	v.SetDefault("chat.mode", cfg.Chat.Mode)
	v.SetDefault("chat.channel_service_type", cfg.Chat.ChannelServiceType)
	v.SetDefault("chat.user_name", cfg.Chat.UserName)
	v.SetDefault("chat.greeting", cfg.Chat.Greeting)
	v.SetDefault("directline.dial_timeout", cfg.DirectLine.DialTimeout)
	v.SetDefault("directline.activity_buffer", cfg.DirectLine.ActivityBuffer)
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.retention_days", cfg.Store.RetentionDays)
	v.SetDefault("store.cleanup_schedule", cfg.Store.CleanupSchedule)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.audit_file", cfg.Logging.AuditFile)
	v.SetDefault("gateway.enabled", cfg.Gateway.Enabled)
	v.SetDefault("gateway.port", cfg.Gateway.Port)
	v.SetDefault("gateway.host", cfg.Gateway.Host)
	v.SetDefault("gateway.shared_secret", cfg.Gateway.SharedSecret)
	v.SetDefault("gateway.tick_interval", cfg.Gateway.TickInterval)
	v.SetDefault("data_dir", cfg.DataDir)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("backend", cfg.Backend)
	v.Set("bot", cfg.Bot)
	v.Set("chat", cfg.Chat)
	v.Set("directline", cfg.DirectLine)
	v.Set("store", cfg.Store)
	v.Set("logging", cfg.Logging)
	v.Set("gateway", cfg.Gateway)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".webchat", "webchat.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
