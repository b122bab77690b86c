package conversation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/webchat/internal/observability"
	"github.com/harun/webchat/internal/tracing"
	"github.com/harun/webchat/pkg/directline"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// StreamDialer opens the DirectLine stream for a minted token
type StreamDialer interface {
	Dial(ctx context.Context, token directline.Token) (*directline.Conn, error)
}

// Config holds client configuration
type Config struct {
	// HostURL is the root of the conversation service, e.g. http://localhost:3000
	HostURL        string
	HTTPClient     *http.Client
	Timeout        time.Duration
	Dialer         StreamDialer
	DialTimeout    time.Duration
	ActivityBuffer int
	Logger         zerolog.Logger
}

// Client talks to the conversation service over HTTP
type Client struct {
	hostURL    string
	httpClient *http.Client
	dialer     StreamDialer
	logger     zerolog.Logger
}

var _ Backend = (*Client)(nil)

// NewClient creates a new conversation service client
func NewClient(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	host := strings.TrimSuffix(strings.TrimSpace(cfg.HostURL), "/")
	if host == "" {
		return nil, fmt.Errorf("host url is required")
	}
	u, err := url.Parse(host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid host url: %q", cfg.HostURL)
	}

	logger := cfg.Logger.With().Str("component", "conversation_client").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &loggingTransport{
				base:   http.DefaultTransport,
				logger: logger,
			},
		}
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &directline.Dialer{
			Domain:      host + "/v3/directline",
			HTTPClient:  httpClient,
			DialTimeout: cfg.DialTimeout,
			Buffer:      cfg.ActivityBuffer,
			Logger:      cfg.Logger,
		}
	}

	return &Client{
		hostURL:    host,
		httpClient: httpClient,
		dialer:     dialer,
		logger:     logger,
	}, nil
}

// StartConversation asks the service to open a conversation between members and the bot
func (c *Client) StartConversation(ctx context.Context, req StartRequest) (StartResult, error) {
	var result StartResult
	err := c.call(ctx, OpStartConversation, http.MethodPost, "/conversations/start", nil, req, &result)
	return result, err
}

// ConversationUpdate transfers server-side conversation state from oldConversationID to newConversationID
func (c *Client) ConversationUpdate(ctx context.Context, oldConversationID, newConversationID, userID string) (UpdateResult, error) {
	body := map[string]string{
		"conversationId": newConversationID,
		"userId":         userID,
	}
	headers := http.Header{}
	headers.Set("conversationid", oldConversationID)

	var result UpdateResult
	err := c.call(ctx, OpConversationUpdate, http.MethodPut, "/conversations/conversationupdate", headers, body, &result)
	return result, err
}

// FetchDirectLineObject mints a DirectLine token for the conversation and opens its stream
func (c *Client) FetchDirectLineObject(ctx context.Context, conversationID string, opts DirectLineOptions) (directline.Handle, error) {
	payload, err := json.Marshal(struct {
		ConversationID string `json:"conversationId"`
		DirectLineOptions
	}{conversationID, opts})
	if err != nil {
		return nil, &BackendError{Op: OpFetchDirectLineObject, Err: err}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+base64.StdEncoding.EncodeToString(payload))

	var tok tokenResponse
	if err := c.call(ctx, OpFetchDirectLineObject, http.MethodGet, "/conversations/generatedirectlinetoken", headers, nil, &tok); err != nil {
		return nil, err
	}

	// the service may echo an empty id; the caller's id is authoritative then
	boundID := tok.ConversationID
	if boundID == "" {
		boundID = conversationID
	}

	start := time.Now()
	conn, err := c.dialer.Dial(ctx, directline.Token{
		ConversationID: boundID,
		Token:          tok.Token,
		StreamURL:      tok.StreamURL,
	})
	observability.RecordBackendCall("directline_dial", time.Since(start), err == nil)
	if err != nil {
		return nil, &BackendError{Op: OpFetchDirectLineObject, Err: err}
	}

	return conn, nil
}

// SendInitialActivity posts the conversationUpdate greeting announcing members
func (c *Client) SendInitialActivity(ctx context.Context, conversationID string, members []directline.ChannelAccount) error {
	activity := directline.NewConversationUpdate(conversationID, members)
	path := "/v3/directline/conversations/" + url.PathEscape(conversationID) + "/activities"
	return c.call(ctx, OpSendInitialActivity, http.MethodPost, path, nil, activity, nil)
}

// call performs one request, validates the response shape and decodes it into out
func (c *Client) call(ctx context.Context, op, method, path string, headers http.Header, in, out interface{}) (err error) {
	logger := tracing.LoggerFromContext(ctx, c.logger).With().Str("op", op).Logger()
	start := time.Now()
	defer func() {
		observability.RecordBackendCall(op, time.Since(start), err == nil)
		if err != nil {
			logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Backend call failed")
		} else {
			logger.Debug().Dur("duration", time.Since(start)).Msg("Backend call succeeded")
		}
	}()

	var body io.Reader
	if in != nil {
		data, merr := json.Marshal(in)
		if merr != nil {
			return &BackendError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", merr)}
		}
		body = bytes.NewReader(data)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, c.hostURL+path, body)
	if rerr != nil {
		return &BackendError{Op: op, Err: fmt.Errorf("failed to create request: %w", rerr)}
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, derr := c.httpClient.Do(req)
	if derr != nil {
		return &BackendError{Op: op, Err: derr}
	}
	defer resp.Body.Close()

	data, rerr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if rerr != nil {
		return &BackendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", rerr)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return &BackendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}

	if out == nil {
		return nil
	}

	if verr := validateResponse(op, data); verr != nil {
		return &BackendError{Op: op, Status: resp.StatusCode, Err: verr}
	}
	if uerr := json.Unmarshal(data, out); uerr != nil {
		return &BackendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", uerr)}
	}

	return nil
}
