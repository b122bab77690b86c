package webchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/webchat/internal/observability"
	"github.com/harun/webchat/internal/tracing"
	"github.com/harun/webchat/pkg/conversation"
	"github.com/harun/webchat/pkg/directline"
	"github.com/harun/webchat/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultUserName = "User"
	tracerName      = "webchat.manager"
	maxIDAttempts   = 3
)

// User is the local chat participant
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u User) account() directline.ChannelAccount {
	return directline.ChannelAccount{ID: u.ID, Name: u.Name, Role: "user"}
}

// Session is a snapshot of the active chat session
type Session struct {
	ConversationID string    `json:"conversationId"`
	ChatMode       string    `json:"chatMode"`
	EndpointID     string    `json:"endpointId"`
	User           User      `json:"user"`
	StartedAt      time.Time `json:"startedAt"`

	handle directline.Handle
}

// Handle returns the live connection backing the session
func (s *Session) Handle() directline.Handle {
	return s.handle
}

func (s *Session) clone() *Session {
	cp := *s
	return &cp
}

// Config holds Manager dependencies and chat defaults
type Config struct {
	Backend conversation.Backend
	Store   session.Store
	// IDs generates tokens for new conversation ids; defaults to NanoIDGenerator
	IDs    IDGenerator
	Logger zerolog.Logger

	ChatMode           string
	ChannelServiceType string
	MsaAppID           string
	MsaPassword        string
	UserName           string
	// DisableGreeting skips the initial conversationUpdate activity
	DisableGreeting bool
}

// Manager is the conversation session manager for one chat panel
type Manager struct {
	backend conversation.Backend
	store   session.Store
	ids     IDGenerator
	logger  zerolog.Logger
	cfg     Config
	user    User
	hub     *eventHub
	now     func() time.Time

	mu     sync.Mutex
	active *Session
	busy   bool
	closed bool
	pumps  sync.WaitGroup
}

// New creates a Manager. The local user is generated here and never changes.
func New(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.IDs == nil {
		cfg.IDs = NanoIDGenerator{}
	}
	if cfg.ChatMode == "" {
		cfg.ChatMode = conversation.ModeConversation
	}
	if cfg.ChannelServiceType == "" {
		cfg.ChannelServiceType = conversation.ChannelServicePublic
	}
	if cfg.UserName == "" {
		cfg.UserName = defaultUserName
	}

	m := &Manager{
		backend: cfg.Backend,
		store:   cfg.Store,
		ids:     cfg.IDs,
		logger:  cfg.Logger.With().Str("component", "session_manager").Logger(),
		cfg:     cfg,
		user:    User{ID: uuid.NewString(), Name: cfg.UserName},
		hub:     newEventHub(),
		now:     time.Now,
	}

	m.logger.Debug().Str("user_id", m.user.ID).Msg("Session manager initialized")
	return m, nil
}

// ActiveUser returns the local user
func (m *Manager) ActiveUser() User {
	return m.user
}

// Active returns the active session, if any
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return m.active.clone(), true
}

// IsActive reports whether conversationID is the active conversation
func (m *Manager) IsActive(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.active.ConversationID == conversationID
}

// Subscribe streams session events. Call cancel to stop receiving.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.hub.Subscribe(buffer)
}

// Records lists persisted chat records, most recent first
func (m *Manager) Records(ctx context.Context) ([]*session.Record, error) {
	return m.store.List(ctx)
}

// Bootstrap starts a new conversation with the bot at botURL and makes it active.
// Any previously active session is ended first.
func (m *Manager) Bootstrap(ctx context.Context, botURL string) (sess *Session, err error) {
	botURL = strings.TrimSpace(botURL)
	if botURL == "" {
		return nil, fmt.Errorf("%w: bot url is required", ErrInvalidInput)
	}

	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.finish()

	ctx = tracing.NewOperationContext(ctx, "bootstrap")
	ctx = tracing.WithUserID(ctx, m.user.ID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.bootstrap",
		attribute.String("bot_url", botURL))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	defer func() {
		observability.RecordBootstrap(time.Since(start), err == nil)
		if sess != nil {
			observability.RecordSessionAudit(ctx, "bootstrap", sess.ConversationID, nil)
		} else {
			observability.RecordSessionAudit(ctx, "bootstrap", "", err)
		}
		if err != nil {
			tracing.FailSpan(span, err)
			m.publishFailure("bootstrap", "", err)
			logger.Warn().Err(err).Msg("Bootstrap failed")
		}
	}()

	m.endActive("bootstrap")

	res, err := m.backend.StartConversation(ctx, conversation.StartRequest{
		BotURL:             botURL,
		ChannelServiceType: m.cfg.ChannelServiceType,
		Members:            []directline.ChannelAccount{m.user.account()},
		Mode:               m.cfg.ChatMode,
		MsaAppID:           m.cfg.MsaAppID,
		MsaPassword:        m.cfg.MsaPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	handle, err := m.backend.FetchDirectLineObject(ctx, res.ConversationID, conversation.DirectLineOptions{
		Mode:       m.cfg.ChatMode,
		EndpointID: res.EndpointID,
		UserID:     m.user.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch directline object: %w", err)
	}

	sess, err = m.activate(ctx, handle, "", m.cfg.ChatMode, res.EndpointID)
	if err != nil {
		return nil, err
	}

	m.hub.Publish(Event{Type: EventSessionStarted, ConversationID: sess.ConversationID, Session: sess})
	logger.Info().
		Str("conversation_id", sess.ConversationID).
		Str("endpoint_id", sess.EndpointID).
		Msg("Session started")

	return sess, nil
}

// Restart moves the chat from oldConversationID to a new handle. With requireNewID
// the next id is freshly generated; otherwise the record's own id is reused.
// The active handle is ended before ConversationUpdate is issued.
func (m *Manager) Restart(ctx context.Context, oldConversationID string, requireNewID bool) (sess *Session, err error) {
	if err := session.ValidateConversationID(oldConversationID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.finish()

	ctx = tracing.NewOperationContext(ctx, "restart")
	ctx = tracing.WithConversationID(ctx, oldConversationID)
	ctx = tracing.WithUserID(ctx, m.user.ID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.restart",
		attribute.String("conversation_id", oldConversationID),
		attribute.Bool("require_new_id", requireNewID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	recordFound := false
	defer func() {
		observability.RecordRestart(requireNewID, time.Since(start), err == nil)
		if sess != nil {
			observability.RecordSessionAudit(ctx, "restart", sess.ConversationID, nil)
		} else {
			observability.RecordSessionAudit(ctx, "restart", oldConversationID, err)
		}
		if err != nil {
			tracing.FailSpan(span, err)
			if recordFound {
				m.publishFailure("restart", oldConversationID, err)
			}
			logger.Warn().Err(err).Msg("Restart failed")
		}
	}()

	rec, err := m.store.Get(ctx, oldConversationID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, oldConversationID)
		}
		return nil, fmt.Errorf("load chat record: %w", err)
	}
	recordFound = true

	chatMode := rec.ChatMode
	if chatMode == "" {
		chatMode = m.cfg.ChatMode
	}

	nextID := rec.ConversationID
	if requireNewID || nextID == "" {
		nextID, err = m.generateID(chatMode, oldConversationID)
		if err != nil {
			return nil, err
		}
	}

	m.endActive("restart")

	userID := rec.User.ID
	if userID == "" {
		userID = m.user.ID
	}

	upd, err := m.backend.ConversationUpdate(ctx, oldConversationID, nextID, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation update: %w", err)
	}

	handle, err := m.backend.FetchDirectLineObject(ctx, nextID, conversation.DirectLineOptions{
		Mode:       conversation.ModeConversation,
		EndpointID: upd.EndpointID,
		UserID:     m.user.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch directline object: %w", err)
	}

	sess, err = m.activate(ctx, handle, nextID, chatMode, upd.EndpointID)
	if err != nil {
		return nil, err
	}

	m.hub.Publish(Event{
		Type:                   EventSessionReplaced,
		ConversationID:         sess.ConversationID,
		PreviousConversationID: oldConversationID,
		Session:                sess,
	})
	logger.Info().
		Str("new_conversation_id", sess.ConversationID).
		Bool("require_new_id", requireNewID).
		Msg("Session restarted")

	return sess, nil
}

// Send posts a text message from the local user into the active conversation
func (m *Manager) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}

	sess, ok := m.Active()
	if !ok {
		return "", ErrNoSession
	}

	from := m.user.account()
	return sess.handle.Post(ctx, directline.Activity{
		Type: directline.ActivityTypeMessage,
		From: &from,
		Text: text,
	})
}

// Close ends the active handle and stops event delivery. Operations still in
// flight end the handle they obtain and return ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sess := m.active
	m.active = nil
	m.mu.Unlock()

	if sess != nil {
		m.endHandle(sess, "closed")
	}

	done := make(chan struct{})
	go func() {
		m.pumps.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.hub.Close()
	m.logger.Debug().Msg("Session manager closed")
	return err
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.busy {
		return ErrBusy
	}
	m.busy = true
	return nil
}

func (m *Manager) finish() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func (m *Manager) generateID(chatMode, previousID string) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := ComposeConversationID(m.ids.NewID(), chatMode)
		if id != previousID {
			return id, nil
		}
	}
	return "", fmt.Errorf("id generator repeated conversation id %q", previousID)
}

// activate persists the record, sends the greeting and makes handle active.
// A non-empty expectedID must match the id the handle is bound to.
// On any failure the handle is ended and the Manager stays in NoSession.
func (m *Manager) activate(ctx context.Context, handle directline.Handle, expectedID, chatMode, endpointID string) (*Session, error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: backend returned no session handle", ErrBackendUnavailable)
	}

	conversationID := handle.ConversationID()
	if conversationID == "" {
		m.discard(handle)
		return nil, fmt.Errorf("%w: session handle has no conversation id", ErrBackendUnavailable)
	}
	if expectedID != "" && conversationID != expectedID {
		m.discard(handle)
		return nil, fmt.Errorf("%w: backend bound conversation %q, requested %q", ErrBackendUnavailable, conversationID, expectedID)
	}

	now := m.now()
	rec := &session.Record{
		ConversationID: conversationID,
		ChatMode:       chatMode,
		User:           session.User{ID: m.user.ID, Name: m.user.Name},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing, err := m.store.Get(ctx, conversationID); err == nil {
		rec.CreatedAt = existing.CreatedAt
	}
	if err := m.store.Put(ctx, rec); err != nil {
		m.discard(handle)
		return nil, fmt.Errorf("persist chat record: %w", err)
	}

	if !m.cfg.DisableGreeting {
		if err := m.backend.SendInitialActivity(ctx, conversationID, []directline.ChannelAccount{m.user.account()}); err != nil {
			m.discard(handle)
			return nil, fmt.Errorf("send initial activity: %w", err)
		}
		observability.RecordGreetingSent()
	}

	sess := &Session{
		ConversationID: conversationID,
		ChatMode:       chatMode,
		EndpointID:     endpointID,
		User:           m.user,
		StartedAt:      now,
		handle:         handle,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.discard(handle)
		return nil, ErrClosed
	}
	m.active = sess
	m.pumps.Add(1)
	m.mu.Unlock()

	observability.SetActiveSessions(1)
	go m.pump(sess)

	return sess.clone(), nil
}

// endActive ends the active handle, leaving NoSession
func (m *Manager) endActive(reason string) {
	m.mu.Lock()
	sess := m.active
	m.active = nil
	m.mu.Unlock()

	if sess != nil {
		m.endHandle(sess, reason)
	}
}

func (m *Manager) endHandle(sess *Session, reason string) {
	if err := sess.handle.End(); err != nil {
		m.logger.Warn().Err(err).Str("conversation_id", sess.ConversationID).Msg("Failed to end session handle")
	}
	observability.RecordHandleEnded()
	observability.SetActiveSessions(0)

	m.hub.Publish(Event{Type: EventSessionEnded, ConversationID: sess.ConversationID, Reason: reason})
	m.logger.Debug().
		Str("conversation_id", sess.ConversationID).
		Str("reason", reason).
		Msg("Session handle ended")
}

// discard ends a handle that never became active
func (m *Manager) discard(handle directline.Handle) {
	if err := handle.End(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to end discarded handle")
	}
	observability.RecordHandleEnded()
}

// pump forwards inbound activities until the handle ends. A stream that ends
// while still active was dropped by the service.
func (m *Manager) pump(sess *Session) {
	defer m.pumps.Done()

	for act := range sess.handle.Activities() {
		act := act
		m.hub.Publish(Event{Type: EventActivity, ConversationID: sess.ConversationID, Activity: &act})
	}

	m.mu.Lock()
	dropped := m.active == sess
	if dropped {
		m.active = nil
	}
	m.mu.Unlock()

	if dropped {
		m.endHandle(sess, "dropped")
	}
}

func (m *Manager) publishFailure(op, conversationID string, err error) {
	m.hub.Publish(Event{
		Type:           EventSessionFailed,
		ConversationID: conversationID,
		Reason:         op,
		Error:          err.Error(),
	})
}
