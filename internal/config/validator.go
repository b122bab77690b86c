package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateURL checks that raw is an absolute http(s) URL
func (v *Validator) ValidateURL(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s scheme %q (must be http or https)", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: missing host", name)
	}

	return nil
}

// ValidateChannelServiceType validates the channel service type sent on startConversation
func (v *Validator) ValidateChannelServiceType(serviceType string) error {
	if serviceType == "" {
		return nil // Use default
	}

	validTypes := []string{"public", "azureusgovernment"}
	for _, valid := range validTypes {
		if serviceType == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid channel service type: %s (must be one of: %s)", serviceType, strings.Join(validTypes, ", "))
}

// ValidateChatMode rejects modes that would break "<token>|<mode>" conversation ids
func (v *Validator) ValidateChatMode(mode string) error {
	if strings.TrimSpace(mode) == "" {
		return fmt.Errorf("chat mode cannot be empty")
	}
	if strings.Contains(mode, "|") {
		return fmt.Errorf("chat mode %q must not contain '|'", mode)
	}
	return nil
}

// ValidateCleanupSchedule validates a cron spec for record cleanup
func (v *Validator) ValidateCleanupSchedule(spec string) error {
	if spec == "" {
		return nil // Cleanup disabled
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateURL("backend host_url", cfg.Backend.HostURL); err != nil {
		errors = append(errors, err)
	}
	if cfg.Bot.URL != "" {
		if err := v.ValidateURL("bot url", cfg.Bot.URL); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateChatMode(cfg.Chat.Mode); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateChannelServiceType(cfg.Chat.ChannelServiceType); err != nil {
		errors = append(errors, err)
	}

	if cfg.DirectLine.DialTimeout < 0 {
		errors = append(errors, fmt.Errorf("directline dial_timeout must be >= 0"))
	}
	if cfg.DirectLine.ActivityBuffer < 0 {
		errors = append(errors, fmt.Errorf("directline activity_buffer must be >= 0"))
	}

	if cfg.Store.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("store retention_days must be >= 0"))
	}
	if err := v.ValidateCleanupSchedule(cfg.Store.CleanupSchedule); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	return errors
}
