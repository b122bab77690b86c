package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with file handling, redaction and runtime level changes
type Logger struct {
	mu       sync.RWMutex
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path
	Console   bool   // enable console output
	Pretty    bool   // pretty format for console
	Redaction bool   // redact tokens and secrets

	// Rotation applies to File when MaxSizeMB > 0
	MaxSizeMB  int
	MaxAgeDays int
	Compress   bool
}

// New creates a new logger and installs it as the global zerolog logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out, file, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	l := &Logger{file: file}
	if cfg.Redaction {
		l.redactor = NewRedactor()
		out = l.redactor.Wrap(out)
	}

	l.logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = l.logger
	return l, nil
}

// openOutput fans log lines out to the console and the log file.
// The returned closer is nil when cfg.File is empty.
func openOutput(cfg Config) (io.Writer, io.Closer, error) {
	var outs []io.Writer

	if cfg.Console {
		if cfg.Pretty {
			outs = append(outs, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		} else {
			outs = append(outs, os.Stdout)
		}
	}

	var file io.WriteCloser
	switch {
	case cfg.File != "" && cfg.MaxSizeMB > 0:
		rw, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxAgeDays, cfg.Compress)
		if err != nil {
			return nil, nil, err
		}
		file = rw
		outs = append(outs, rw)
	case cfg.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		outs = append(outs, f)
	}

	switch len(outs) {
	case 0:
		return io.Discard, nil, nil
	case 1:
		return outs[0], file, nil
	}
	return zerolog.MultiLevelWriter(outs...), file, nil
}

// Close closes the logger and any open files
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevel changes the level of this logger and of the global logger.
// Unknown levels are rejected and leave the current level in place.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return fmt.Errorf("invalid log level %q", level)
	}

	l.mu.Lock()
	l.logger = l.logger.Level(parsed)
	log.Logger = l.logger
	l.mu.Unlock()
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	zl := l.GetZerolog()
	return zl.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	zl := l.GetZerolog()
	return zl.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	zl := l.GetZerolog()
	return zl.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	zl := l.GetZerolog()
	return zl.Error()
}

// With creates a child logger context
func (l *Logger) With() zerolog.Context {
	return l.GetZerolog().With()
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
	}
}
