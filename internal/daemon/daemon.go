package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/webchat/internal/config"
	"github.com/harun/webchat/internal/logger"
	"github.com/harun/webchat/internal/observability"
	"github.com/harun/webchat/internal/tracing"
	"github.com/harun/webchat/pkg/conversation"
	"github.com/harun/webchat/pkg/gateway"
	"github.com/harun/webchat/pkg/session"
	"github.com/harun/webchat/pkg/webchat"
)

const stopTimeout = 10 * time.Second

// Daemon runs the webchat session manager with its store, cleanup job and gateway
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store     session.Store
	backend   *conversation.Client
	manager   *webchat.Manager
	cleanup   *session.Cleanup
	gateway   *gateway.Server
	watcher   *config.Watcher
	lifecycle *LifecycleManager
	audit     *observability.AuditLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := tracing.InitOpenTelemetry("webchat"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initialize(); err != nil {
		cancel()
		if d.store != nil {
			_ = d.store.Close()
		}
		if d.audit != nil {
			_ = d.audit.Close()
		}
		d.shutdownTracing()
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initialize() error {
	cfg := d.config

	if cfg.Logging.AuditFile != "" {
		audit, err := observability.OpenAuditLog(cfg.Logging.AuditFile)
		if err != nil {
			return err
		}
		d.audit = audit
	}

	store, err := session.Open(cfg.Store.Driver, StorePath(cfg), d.logger.Component("session_store"))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	d.store = store

	backend, err := conversation.NewClient(conversation.Config{
		HostURL:        cfg.Backend.HostURL,
		Timeout:        time.Duration(cfg.Backend.Timeout) * time.Second,
		DialTimeout:    time.Duration(cfg.DirectLine.DialTimeout) * time.Second,
		ActivityBuffer: cfg.DirectLine.ActivityBuffer,
		Logger:         d.logger.Component("conversation"),
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation client: %w", err)
	}
	d.backend = backend

	manager, err := webchat.New(webchat.Config{
		Backend:            backend,
		Store:              store,
		Logger:             d.logger.Component("webchat"),
		ChatMode:           cfg.Chat.Mode,
		ChannelServiceType: cfg.Chat.ChannelServiceType,
		MsaAppID:           cfg.Backend.MsaAppID,
		MsaPassword:        cfg.Backend.MsaPassword,
		UserName:           cfg.Chat.UserName,
		DisableGreeting:    !cfg.Chat.Greeting,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	d.manager = manager

	retention := time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
	cleanup, err := session.NewCleanup(store, retention, cfg.Store.CleanupSchedule, d.logger.Component("session_cleanup"))
	if err != nil {
		return fmt.Errorf("failed to create record cleanup: %w", err)
	}
	cleanup.Skip = manager.IsActive
	d.cleanup = cleanup

	if cfg.Gateway.Enabled {
		srv, err := gateway.NewServer(gateway.Config{
			Host:          cfg.Gateway.Host,
			Port:          cfg.Gateway.Port,
			SharedSecret:  cfg.Gateway.SharedSecret,
			TickInterval:  time.Duration(cfg.Gateway.TickInterval) * time.Second,
			DefaultBotURL: cfg.Bot.URL,
			Sessions:      manager,
			Logger:        d.logger.GetZerolog(),
		})
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		d.gateway = srv
	}

	return nil
}

// StorePath resolves the store location relative to the data directory
func StorePath(cfg *config.Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	switch cfg.Store.Driver {
	case session.DriverFile:
		return filepath.Join(cfg.DataDir, "chats")
	case session.DriverSQLite:
		return filepath.Join(cfg.DataDir, "chats.db")
	}
	return ""
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting webchat daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.audit != nil {
		observability.SetAuditLogger(d.audit)
	}

	if err := d.cleanup.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start record cleanup")
	} else {
		logger.Info().Str("schedule", d.config.Store.CleanupSchedule).Msg("Record cleanup started")
	}

	if d.gateway != nil {
		if err := d.gateway.Start(); err != nil {
			return fmt.Errorf("failed to start gateway server: %w", err)
		}
		logger.Info().Str("addr", d.gateway.Addr()).Msg("Gateway server started")
	}

	if d.config.Bot.URL != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.bootstrapOnStart()
		}()
	}

	logger.Info().Msg("Daemon started")
	return nil
}

// bootstrapOnStart opens the first session the way the panel does when it mounts
func (d *Daemon) bootstrapOnStart() {
	ctx, cancel := context.WithTimeout(d.ctx, time.Duration(d.config.Backend.Timeout+d.config.DirectLine.DialTimeout)*time.Second)
	defer cancel()

	sess, err := d.manager.Bootstrap(ctx, d.config.Bot.URL)
	if err != nil {
		d.logger.Warn().Err(err).Str("bot_url", d.config.Bot.URL).Msg("Initial bootstrap failed")
		return
	}
	d.logger.Info().Str("conversation_id", sess.ConversationID).Msg("Initial session started")
}

// WatchConfig reloads the log level whenever the config file changes
func (d *Daemon) WatchConfig(loader *config.Loader) error {
	w, err := config.NewWatcher(loader, d.logger.GetZerolog(), d.applyConfig)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()
	return nil
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.Logging.Level == d.config.Logging.Level {
		return
	}
	if err := d.logger.SetLevel(cfg.Logging.Level); err != nil {
		d.logger.Warn().Err(err).Msg("Ignoring config reload")
		return
	}
	d.logger.Info().
		Str("from", d.config.Logging.Level).
		Str("to", cfg.Logging.Level).
		Msg("Log level reloaded")
	observability.RecordConfigAudit(d.ctx, "log_level", map[string]interface{}{
		"from": d.config.Logging.Level,
		"to":   cfg.Logging.Level,
	})
	d.config.Logging.Level = cfg.Logging.Level
}

// Stop stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	watcher := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping webchat daemon")

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if d.gateway != nil {
		if err := d.gateway.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop gateway server")
		}
	}

	if d.cleanup.IsRunning() {
		if err := d.cleanup.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop record cleanup")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	if err := d.manager.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close session manager")
	}
	cancel()

	if err := d.store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close record store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.audit != nil {
		if observability.Audit() == d.audit {
			observability.SetAuditLogger(nil)
		}
		if err := d.audit.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close audit log")
		}
	}

	d.shutdownTracing()

	logger.Info().Msg("Daemon stopped")
	return nil
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	if sess, ok := d.manager.Active(); ok {
		status.ConversationID = sess.ConversationID
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetManager returns the session manager
func (d *Daemon) GetManager() *webchat.Manager {
	return d.manager
}

// GetStore returns the record store
func (d *Daemon) GetStore() session.Store {
	return d.store
}

// GetCleanup returns the record cleanup job
func (d *Daemon) GetCleanup() *session.Cleanup {
	return d.cleanup
}

// GetGatewayServer returns the gateway, nil when disabled
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gateway
}

// Status represents daemon status
type Status struct {
	Running        bool
	Uptime         time.Duration
	StartTime      time.Time
	ConversationID string
}
