package directline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const closeWriteTimeout = time.Second

// Conn is a Handle backed by a DirectLine websocket stream
type Conn struct {
	conversationID string
	token          string
	domain         string

	ws         *websocket.Conn
	httpClient *http.Client
	logger     zerolog.Logger

	activities chan Activity
	done       chan struct{}
	doneOnce   sync.Once
	endOnce    sync.Once
	readDone   chan struct{}

	mu        sync.RWMutex
	watermark string
}

func newConn(ws *websocket.Conn, token Token, domain string, httpClient *http.Client, buffer int, logger zerolog.Logger) *Conn {
	c := &Conn{
		conversationID: token.ConversationID,
		token:          token.Token,
		domain:         strings.TrimSuffix(domain, "/"),
		ws:             ws,
		httpClient:     httpClient,
		logger:         logger.With().Str("conversation_id", token.ConversationID).Logger(),
		activities:     make(chan Activity, buffer),
		done:           make(chan struct{}),
		readDone:       make(chan struct{}),
	}

	go c.readPump()

	return c
}

// ConversationID returns the conversation the connection is bound to
func (c *Conn) ConversationID() string {
	return c.conversationID
}

// Activities streams inbound activities. The channel is closed when the connection ends.
func (c *Conn) Activities() <-chan Activity {
	return c.activities
}

// Done is closed when the connection has ended
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Watermark returns the last stream watermark seen
func (c *Conn) Watermark() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watermark
}

// End sends a close frame and tears the stream down
func (c *Conn) End() error {
	var err error
	c.endOnce.Do(func() {
		if c.isEnded() {
			// the service already dropped the stream
			<-c.readDone
			return
		}
		c.markDone()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		if cerr := c.ws.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}

		<-c.readDone
		c.logger.Debug().Msg("DirectLine connection ended")
	})
	return err
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Conn) isEnded() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Post sends an activity through the DirectLine REST endpoint
func (c *Conn) Post(ctx context.Context, activity Activity) (string, error) {
	if c.isEnded() {
		return "", ErrEnded
	}
	if activity.Conversation == nil {
		activity.Conversation = &ConversationAccount{ID: c.conversationID}
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return "", fmt.Errorf("failed to marshal activity: %w", err)
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/activities", c.domain, url.PathEscape(c.conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("post activity failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var rr ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to decode post response: %w", err)
	}

	return rr.ID, nil
}

// readPump is the only sender on c.activities and closes it on exit
func (c *Conn) readPump() {
	defer close(c.readDone)
	defer close(c.activities)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isEnded() {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn().Err(err).Msg("DirectLine stream dropped")
				}
				// a stream the service closed is as dead as one we ended
				c.markDone()
				_ = c.ws.Close()
			}
			return
		}

		// DirectLine sends empty frames as keep-alives
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		var set ActivitySet
		if err := json.Unmarshal(data, &set); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to decode activity set, skipping")
			continue
		}

		if set.Watermark != "" {
			c.mu.Lock()
			c.watermark = set.Watermark
			c.mu.Unlock()
		}

		for _, act := range set.Activities {
			select {
			case c.activities <- act:
			case <-c.done:
				return
			}
		}
	}
}
