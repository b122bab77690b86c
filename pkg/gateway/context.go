package gateway

import (
	"context"

	"github.com/harun/webchat/internal/tracing"
)

type clientIDKey struct{}

// requestContext is the context a websocket request from clientID runs under.
// Requests are not cancelled when the socket closes.
func requestContext(clientID string) context.Context {
	ctx := context.WithValue(context.Background(), clientIDKey{}, clientID)
	return tracing.WithTraceID(ctx, tracing.NewTraceID())
}

// ClientIDFromContext returns the id of the websocket client that issued the call
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
