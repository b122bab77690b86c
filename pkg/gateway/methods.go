package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/webchat/internal/tracing"
	"github.com/harun/webchat/pkg/session"
	"github.com/harun/webchat/pkg/webchat"
)

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("session.bootstrap", s.handleSessionBootstrap)
	_ = s.RegisterMethod("session.restart", s.handleSessionRestart)
	_ = s.RegisterMethod("session.active", s.handleSessionActive)
	_ = s.RegisterMethod("session.user", s.handleSessionUser)
	_ = s.RegisterMethod("session.records", s.handleSessionRecords)
	_ = s.RegisterMethod("session.send", s.handleSessionSend)
	_ = s.RegisterMethod("gateway.clients", s.handleGatewayClients)
}

// handleSessionBootstrap handles session.bootstrap {botUrl}
func (s *Server) handleSessionBootstrap(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	botURL, err := stringParam(params, "botUrl", true)
	if err != nil {
		return nil, err
	}
	if botURL == "" {
		botURL = s.defaultBotURL
	}
	if botURL == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "botUrl parameter is required"}
	}

	ctx = tracing.NewOperationContext(ctx, "gateway.session.bootstrap")
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("clientId", ClientIDFromContext(ctx)).
		Str("bot_url", botURL).
		Msg("Bootstrap requested")

	sess, err := s.sessions.Bootstrap(ctx, botURL)
	if err != nil {
		return nil, sessionError(err)
	}
	return sess, nil
}

// handleSessionRestart handles session.restart {conversationId, requireNewId}
func (s *Server) handleSessionRestart(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	conversationID, err := stringParam(params, "conversationId", true)
	if err != nil {
		return nil, err
	}
	if conversationID == "" {
		if active, ok := s.sessions.Active(); ok {
			conversationID = active.ConversationID
		}
	}
	if conversationID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "conversationId parameter is required"}
	}

	requireNewID := false
	if raw, exists := params["requireNewId"]; exists {
		v, ok := raw.(bool)
		if !ok {
			return nil, &RPCError{Code: InvalidParams, Message: "requireNewId must be a boolean"}
		}
		requireNewID = v
	}

	ctx = tracing.NewOperationContext(ctx, "gateway.session.restart")
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("clientId", ClientIDFromContext(ctx)).
		Str("conversation_id", conversationID).
		Bool("require_new_id", requireNewID).
		Msg("Restart requested")

	sess, err := s.sessions.Restart(ctx, conversationID, requireNewID)
	if err != nil {
		return nil, sessionError(err)
	}
	return sess, nil
}

// handleSessionActive returns the active session or null
func (s *Server) handleSessionActive(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sess, ok := s.sessions.Active()
	if !ok {
		return map[string]interface{}{"active": false}, nil
	}
	return map[string]interface{}{
		"active":  true,
		"session": sess,
	}, nil
}

func (s *Server) handleSessionUser(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.sessions.ActiveUser(), nil
}

func (s *Server) handleSessionRecords(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	records, err := s.sessions.Records(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	if records == nil {
		records = []*session.Record{}
	}
	return map[string]interface{}{
		"records": records,
		"count":   len(records),
	}, nil
}

// handleSessionSend handles session.send {text}
func (s *Server) handleSessionSend(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	text, err := stringParam(params, "text", false)
	if err != nil {
		return nil, err
	}

	id, err := s.sessions.Send(ctx, text)
	if err != nil {
		return nil, sessionError(err)
	}
	return map[string]interface{}{"id": id}, nil
}

func (s *Server) handleGatewayClients(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"clients": s.clients.Infos(),
	}, nil
}

// stringParam reads a string param. Optional params may be absent or empty.
func stringParam(params map[string]interface{}, name string, optional bool) (string, error) {
	raw, exists := params[name]
	if !exists || raw == nil {
		if optional {
			return "", nil
		}
		return "", &RPCError{Code: InvalidParams, Message: fmt.Sprintf("%s parameter is required", name)}
	}
	v, ok := raw.(string)
	if !ok {
		return "", &RPCError{Code: InvalidParams, Message: fmt.Sprintf("%s must be a string", name)}
	}
	v = strings.TrimSpace(v)
	if v == "" && !optional {
		return "", &RPCError{Code: InvalidParams, Message: fmt.Sprintf("%s parameter is required", name)}
	}
	return v, nil
}

// sessionError maps session manager errors onto RPC error codes
func sessionError(err error) error {
	code := InternalError
	switch {
	case errors.Is(err, webchat.ErrInvalidInput):
		code = InvalidParams
	case errors.Is(err, webchat.ErrRecordNotFound):
		code = RecordNotFound
	case errors.Is(err, webchat.ErrBusy):
		code = SessionBusy
	case errors.Is(err, webchat.ErrBackendUnavailable):
		code = BackendUnavailable
	case errors.Is(err, webchat.ErrNoSession):
		code = NoActiveSession
	case errors.Is(err, webchat.ErrClosed):
		code = ServiceClosed
	}
	return &RPCError{Code: code, Message: err.Error()}
}
