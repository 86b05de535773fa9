package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/devilmonastery/tessera/internal/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// requestIDTransport stamps every request with a fresh request ID and logs
// the round trip at debug level.
type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	requestID := req.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(requestIDHeader, requestID)
	}

	log := logger.WithRequest(
		logger.WithEndpoint(slog.Default().With("component", "client"), req.Method, req.URL.Path),
		requestID)
	log.Debug("sending request")

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		logger.WithDuration(log, time.Since(start)).Debug("request failed", slog.String("error", err.Error()))
		return nil, err
	}

	logger.WithDuration(log, time.Since(start)).Debug("received response", slog.Int("status", resp.StatusCode))
	return resp, nil
}
