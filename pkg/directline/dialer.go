package directline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultBuffer      = 64
)

// Token is the credential minted by the backend for one conversation and user
type Token struct {
	ConversationID string
	Token          string
	StreamURL      string
}

// Dialer opens DirectLine stream connections
type Dialer struct {
	// Domain is the DirectLine REST root, e.g. http://localhost:3000/v3/directline
	Domain      string
	HTTPClient  *http.Client
	DialTimeout time.Duration
	Buffer      int
	Logger      zerolog.Logger
}

// Dial connects to the stream for token and returns a live Conn
func (d *Dialer) Dial(ctx context.Context, token Token) (*Conn, error) {
	if token.ConversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	streamURL, err := d.streamURL(token)
	if err != nil {
		return nil, err
	}

	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	buffer := d.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	httpClient := d.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	header := http.Header{}
	if token.Token != "" {
		header.Set("Authorization", "Bearer "+token.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(dialCtx, streamURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial stream (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}

	d.Logger.Debug().
		Str("conversation_id", token.ConversationID).
		Msg("DirectLine stream connected")

	return newConn(ws, token, d.domain(), httpClient, buffer, d.Logger), nil
}

func (d *Dialer) domain() string {
	return strings.TrimSuffix(d.Domain, "/")
}

// streamURL prefers the URL minted by the backend and falls back to the
// conventional stream path under Domain.
func (d *Dialer) streamURL(token Token) (string, error) {
	if token.StreamURL != "" {
		u, err := url.Parse(token.StreamURL)
		if err != nil {
			return "", fmt.Errorf("invalid stream url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return "", fmt.Errorf("invalid stream url scheme %q", u.Scheme)
		}
		return u.String(), nil
	}

	if d.Domain == "" {
		return "", fmt.Errorf("stream url missing and no domain configured")
	}

	u, err := url.Parse(d.domain())
	if err != nil {
		return "", fmt.Errorf("invalid domain: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid domain scheme %q", u.Scheme)
	}
	u.Path = u.Path + "/conversations/" + token.ConversationID + "/stream"
	if token.Token != "" {
		q := u.Query()
		q.Set("t", token.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
