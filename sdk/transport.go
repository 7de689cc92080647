package sdk

import (
	"fmt"
	"net/http"
	"time"
)

// loggingTransport logs outgoing SDK requests with the write key masked.
type loggingTransport struct {
	Transport http.RoundTripper
	Logger    Logger
	WriteKey  string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := fmt.Sprintf("%p", req)
	startTime := time.Now()
	target := obscureIn(req.URL.String(), t.WriteKey)

	t.Logger.Debug("Outgoing request",
		"id", requestID,
		"method", req.Method,
		"url", target,
	)

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)
	if err != nil {
		t.Logger.Error("Request failed",
			"id", requestID,
			"url", target,
			"method", req.Method,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return resp, fmt.Errorf("http request failed: %w", err)
	}

	t.Logger.Debug("Received response",
		"id", requestID,
		"url", target,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return resp, nil
}

// newHTTPClient wraps base so every request is logged.
func newHTTPClient(base *http.Client, logger Logger, writeKey string) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	client := *base
	client.Transport = &loggingTransport{Transport: rt, Logger: logger, WriteKey: writeKey}
	return &client
}
