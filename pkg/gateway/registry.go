package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/webchat/internal/observability"
)

// idleAfter marks a client idle in ClientInfo
const idleAfter = 5 * time.Minute

// ClientRegistry tracks websocket clients by id. Every membership change
// updates the gateway clients gauge.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
	}
}

// Add registers client under its id
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	r.clients[client.ID] = client
	n := len(r.clients)
	r.mu.Unlock()

	observability.SetGatewayClients(n)
}

// Remove forgets clientID
func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	n := len(r.clients)
	r.mu.Unlock()

	observability.SetGatewayClients(n)
}

// Get retrieves a client by id
func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	return client, exists
}

// All returns every registered client
func (r *ClientRegistry) All() []*Client {
	return r.filter(func(*Client) bool { return true })
}

// Authenticated returns the clients that completed the challenge
func (r *ClientRegistry) Authenticated() []*Client {
	return r.filter(func(c *Client) bool { return c.Authenticated })
}

func (r *ClientRegistry) filter(keep func(*Client) bool) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		if keep(client) {
			out = append(out, client)
		}
	}
	return out
}

// Count returns the number of connected clients
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Infos describes connected clients, oldest connection first
func (r *ClientRegistry) Infos() []ClientInfo {
	r.mu.RLock()
	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, client := range r.clients {
		infos = append(infos, ClientInfo{
			ID:            client.ID,
			Authenticated: client.Authenticated,
			ConnectedAt:   client.ConnectedAt,
			LastActivity:  client.LastActivity,
			IPAddress:     client.IPAddress,
			Idle:          now.Sub(client.LastActivity) > idleAfter,
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// IsAuthenticated reports whether the client completed the challenge
func (r *ClientRegistry) IsAuthenticated(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	return exists && client.Authenticated
}

// Authenticate runs the auth handshake for a registered client under the registry lock
func (r *ClientRegistry) Authenticate(clientID string, auth *AuthHandler, signature string) AuthResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, exists := r.clients[clientID]
	if !exists {
		return AuthResult{Event: "auth.failure", Message: "unknown client"}
	}
	return auth.HandleAuthResponse(client, signature)
}

// Touch records activity for clientID
func (r *ClientRegistry) Touch(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[clientID]; exists {
		client.LastActivity = time.Now()
	}
}
