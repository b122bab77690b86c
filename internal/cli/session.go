package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harun/webchat/internal/config"
	"github.com/harun/webchat/internal/daemon"
	"github.com/harun/webchat/internal/logger"
	"github.com/harun/webchat/pkg/conversation"
	"github.com/harun/webchat/pkg/session"
	"github.com/harun/webchat/pkg/webchat"
)

// sessionEnv is a session manager opened for a single command
type sessionEnv struct {
	cfg     *config.Config
	log     *logger.Logger
	store   session.Store
	manager *webchat.Manager
}

func openSessionEnv(cfg *config.Config) (*sessionEnv, error) {
	// stdout carries command output
	log, err := newLogger(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := openStore(cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	backend, err := conversation.NewClient(conversation.Config{
		HostURL:        cfg.Backend.HostURL,
		Timeout:        time.Duration(cfg.Backend.Timeout) * time.Second,
		DialTimeout:    time.Duration(cfg.DirectLine.DialTimeout) * time.Second,
		ActivityBuffer: cfg.DirectLine.ActivityBuffer,
		Logger:         log.Component("conversation"),
	})
	if err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to create conversation client: %w", err)
	}

	manager, err := webchat.New(webchat.Config{
		Backend:            backend,
		Store:              store,
		Logger:             log.Component("webchat"),
		ChatMode:           cfg.Chat.Mode,
		ChannelServiceType: cfg.Chat.ChannelServiceType,
		MsaAppID:           cfg.Backend.MsaAppID,
		MsaPassword:        cfg.Backend.MsaPassword,
		UserName:           cfg.Chat.UserName,
		DisableGreeting:    !cfg.Chat.Greeting,
	})
	if err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	return &sessionEnv{cfg: cfg, log: log, store: store, manager: manager}, nil
}

func openStore(cfg *config.Config, log *logger.Logger) (session.Store, error) {
	store, err := session.Open(cfg.Store.Driver, daemon.StorePath(cfg), log.Component("session_store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return store, nil
}

func (e *sessionEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.manager.Close(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close session manager")
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close record store")
	}
	e.log.Close()
}

// operationTimeout bounds one backend round trip including the stream dial
func (e *sessionEnv) operationTimeout() time.Duration {
	return time.Duration(e.cfg.Backend.Timeout+e.cfg.DirectLine.DialTimeout) * time.Second
}

// follow prints session events as JSON lines until ctx is done or the session ends
func (e *sessionEnv) follow(ctx context.Context, out io.Writer) error {
	events, cancel := e.manager.Subscribe(0)
	defer cancel()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := enc.Encode(evt); err != nil {
				return err
			}
			if evt.Type == webchat.EventSessionEnded {
				return nil
			}
		}
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
