package conversation

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// loggingTransport logs every backend round trip at debug level.
// Headers are not logged; Authorization carries the DirectLine options blob.
type loggingTransport struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", duration).
			Err(err).
			Msg("Backend request failed")
		return resp, err
	}

	t.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("Backend request")

	return resp, nil
}
