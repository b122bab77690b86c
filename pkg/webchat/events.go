package webchat

import (
	"sync"
	"time"

	"github.com/harun/webchat/pkg/directline"
)

// EventType names a session lifecycle event
type EventType string

const (
	// EventSessionStarted is published when Bootstrap activates a session
	EventSessionStarted EventType = "session.started"
	// EventSessionReplaced is published when Restart activates a session
	EventSessionReplaced EventType = "session.replaced"
	// EventSessionEnded is published when the active handle is ended or dropped
	EventSessionEnded EventType = "session.ended"
	// EventSessionFailed is published when Bootstrap or Restart fails
	EventSessionFailed EventType = "session.failed"
	// EventActivity carries an inbound activity from the active handle
	EventActivity EventType = "session.activity"
)

// Event is delivered to subscribers
type Event struct {
	Type                   EventType            `json:"type"`
	ConversationID         string               `json:"conversationId,omitempty"`
	PreviousConversationID string               `json:"previousConversationId,omitempty"`
	Session                *Session             `json:"session,omitempty"`
	Activity               *directline.Activity `json:"activity,omitempty"`
	Reason                 string               `json:"reason,omitempty"`
	Error                  string               `json:"error,omitempty"`
	Time                   time.Time            `json:"time"`
}

const defaultSubscriberBuffer = 64

type eventHub struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
	closed      bool
}

func newEventHub() *eventHub {
	return &eventHub{
		subscribers: make(map[uint64]chan Event),
	}
}

func (h *eventHub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan Event, buffer)
	h.nextID++
	subID := h.nextID
	h.subscribers[subID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		sub, exists := h.subscribers[subID]
		if !exists {
			return
		}
		delete(h.subscribers, subID)
		close(sub)
	}

	return ch, cancel
}

// Publish never blocks; a full subscriber misses the event
func (h *eventHub) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	h.mu.RLock()
	for _, sub := range h.subscribers {
		select {
		case sub <- evt:
		default:
		}
	}
	h.mu.RUnlock()
}

func (h *eventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub)
	}
}
