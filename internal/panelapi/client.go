// Package panelapi is the HTTP client for the hosting panel backend.
package panelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxResponseBytes = 32 << 20

// Client talks to the panel REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for baseURL. A zero timeout falls back to 30s.
func New(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// envelope is the part of every panel response the client inspects before
// decoding the payload.
type envelope struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// do performs one request and decodes the JSON body into out. Application
// errors become *APIError, everything else *TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (envelope, error) {
	raw, status, err := c.roundTrip(ctx, op, method, path, query, body)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(raw, &env); err != nil {
			return envelope{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	if status < 200 || status > 299 {
		return env, &APIError{Op: op, Status: status, Message: env.Error}
	}
	if env.Error != "" {
		return env, &APIError{Op: op, Status: status, Message: env.Error}
	}
	if env.Success != nil && !*env.Success {
		return env, &APIError{Op: op, Status: status, Message: env.Message}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return env, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return env, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("panel request failed", "op", op, "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("panel request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)
	return raw, resp.StatusCode, nil
}
