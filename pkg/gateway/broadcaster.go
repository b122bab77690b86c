package gateway

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventBroadcaster fans event frames out to authenticated clients.
// Every frame carries a process-wide increasing sequence number.
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     atomic.Int64
}

// NewEventBroadcaster creates a broadcaster over clients
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Broadcast sends an untyped event to all authenticated clients
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	b.BroadcastTyped(EventMessage{Event: event, Data: data})
}

// BroadcastTyped sends msg to all authenticated clients, filling type,
// sequence and timestamp when unset.
func (b *EventBroadcaster) BroadcastTyped(msg EventMessage) {
	msg = b.stamp(msg)
	frame, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Int64("seq", msg.Seq).Msg("Failed to marshal event")
		return
	}

	targets := b.clients.Authenticated()
	if len(targets) == 0 {
		return
	}

	delivered := 0
	for _, client := range targets {
		if err := client.WriteMessage(websocket.TextMessage, frame); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", msg.Event).
				Int64("seq", msg.Seq).
				Msg("Failed to deliver event")
			continue
		}
		delivered++
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Str("stream", string(msg.Stream)).
		Str("conversation_id", msg.ConversationID).
		Int64("seq", msg.Seq).
		Int("delivered", delivered).
		Int("targets", len(targets)).
		Msg("Event broadcast")
}

// BroadcastToClient sends msg to a single authenticated client
func (b *EventBroadcaster) BroadcastToClient(clientID string, msg EventMessage) error {
	client, ok := b.clients.Get(clientID)
	if !ok || !b.clients.IsAuthenticated(clientID) {
		return fmt.Errorf("client %s not connected", clientID)
	}
	return client.WriteJSON(b.stamp(msg))
}

func (b *EventBroadcaster) stamp(msg EventMessage) EventMessage {
	msg.Type = "event"
	if msg.Seq == 0 {
		msg.Seq = b.seq.Add(1)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	return msg
}
