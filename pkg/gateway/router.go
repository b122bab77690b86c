package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	defaultIdempotencyTTL = 5 * time.Minute
	maxIdempotencyEntries = 1024
)

// RPCRouter dispatches JSON-RPC requests to registered handlers.
//
// Requests carrying an idempotencyKey are answered once per client, method and
// key; repeats within the TTL replay the first response under the new request id.
// This lets the panel retry session.bootstrap and session.restart after a
// dropped socket without opening a second conversation.
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler

	replayMu       sync.Mutex
	replays        map[string]replayEntry
	idempotencyTTL time.Duration
	now            func() time.Time
}

type replayEntry struct {
	response  RPCResponse
	expiresAt time.Time
}

// NewRPCRouter creates an empty router
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods:        make(map[string]RequestHandler),
		replays:        make(map[string]replayEntry),
		idempotencyTTL: defaultIdempotencyTTL,
		now:            time.Now,
	}
}

// RegisterMethod registers handler under name, replacing any previous one
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	r.methods[name] = handler
	r.mu.Unlock()
	return nil
}

// UnregisterMethod removes an RPC method handler
func (r *RPCRouter) UnregisterMethod(name string) {
	r.mu.Lock()
	delete(r.methods, name)
	r.mu.Unlock()
}

// HasMethod checks if a method is registered
func (r *RPCRouter) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.methods[name]
	return exists
}

// GetMethods returns the registered method names in sorted order
func (r *RPCRouter) GetMethods() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ParseRequest decodes a frame and checks the required fields
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}

	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	return &req, nil
}

// RouteRequest runs the handler for req and builds its response
func (r *RPCRouter) RouteRequest(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", &RPCError{Code: InvalidRequest, Message: "invalid request"})
	}

	key := replayKey(ClientIDFromContext(ctx), req.Method, req.IdempotencyKey)
	if key != "" {
		if resp, ok := r.replay(key); ok {
			resp.ID = req.ID
			return &resp
		}
	}

	resp := r.dispatch(ctx, req)
	if key != "" {
		r.remember(key, *resp)
	}
	return resp
}

func (r *RPCRouter) dispatch(ctx context.Context, req *RPCRequest) *RPCResponse {
	r.mu.RLock()
	handler, exists := r.methods[req.Method]
	r.mu.RUnlock()

	if !exists {
		return errorResponse(req.ID, &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		})
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := handler(ctx, params)
	if err != nil {
		return errorResponse(req.ID, toRPCError(err))
	}
	return &RPCResponse{ID: req.ID, JSONRPC: "2.0", Result: result}
}

func errorResponse(id string, rpcErr *RPCError) *RPCResponse {
	return &RPCResponse{ID: id, JSONRPC: "2.0", Error: rpcErr}
}

// toRPCError keeps the code of handler errors that carry one
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		cp := *rpcErr
		return &cp
	}
	return &RPCError{Code: InternalError, Message: err.Error()}
}

func replayKey(clientID, method, idempotencyKey string) string {
	if idempotencyKey == "" {
		return ""
	}
	return clientID + "\x00" + method + "\x00" + idempotencyKey
}

func (r *RPCRouter) replay(key string) (RPCResponse, bool) {
	r.replayMu.Lock()
	defer r.replayMu.Unlock()

	entry, ok := r.replays[key]
	if !ok {
		return RPCResponse{}, false
	}
	if r.now().After(entry.expiresAt) {
		delete(r.replays, key)
		return RPCResponse{}, false
	}
	return cloneRPCResponse(entry.response), true
}

func (r *RPCRouter) remember(key string, resp RPCResponse) {
	r.replayMu.Lock()
	defer r.replayMu.Unlock()

	now := r.now()
	for k, entry := range r.replays {
		if now.After(entry.expiresAt) {
			delete(r.replays, k)
		}
	}
	if len(r.replays) >= maxIdempotencyEntries {
		r.evictOldest()
	}

	r.replays[key] = replayEntry{
		response:  cloneRPCResponse(resp),
		expiresAt: now.Add(r.idempotencyTTL),
	}
}

// evictOldest drops the entry closest to expiry. Caller holds replayMu.
func (r *RPCRouter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, entry := range r.replays {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = k, entry.expiresAt
		}
	}
	delete(r.replays, oldestKey)
}

func cloneRPCResponse(src RPCResponse) RPCResponse {
	cloned := src
	if src.Error != nil {
		errCopy := *src.Error
		cloned.Error = &errCopy
	}
	return cloned
}
