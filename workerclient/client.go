// Package workerclient is a typed HTTP client for the worker hop's
// /worker/... API. The front hop, the tool server and the CLI all use it.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pilab-dev/neoproxy/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultTimeout = 30 * time.Second

// StatusError is returned when the worker answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worker error: %s", e.Detail)
}

// ValidateResponse is the worker's answer to a successful login.
type ValidateResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TradingResponse is the envelope of the read operations. Exactly one of the
// payload fields is set, depending on the operation.
type TradingResponse struct {
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Holdings  json.RawMessage `json:"holdings,omitempty"`
	Limits    json.RawMessage `json:"limits,omitempty"`
	Positions json.RawMessage `json:"positions,omitempty"`
}

// Order is the body of buy and sell calls.
type Order struct {
	Qty   int    `json:"qty"`
	Stock string `json:"stock"`
}

// Client calls a worker.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the worker at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewWithHTTPClient creates a client using the given HTTP client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Validate logs in and returns the new session id.
func (c *Client) Validate(ctx context.Context, creds domain.Credentials) (*ValidateResponse, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/worker/validate", creds)
	if err != nil {
		return nil, err
	}

	var resp ValidateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode validate response: %w", err)
	}
	return &resp, nil
}

// Holdings fetches the session's holdings.
func (c *Client) Holdings(ctx context.Context, sessionID string) (*TradingResponse, error) {
	return c.trading(ctx, "holdings", sessionID)
}

// Limits fetches the session's limits.
func (c *Client) Limits(ctx context.Context, sessionID string) (*TradingResponse, error) {
	return c.trading(ctx, "limits", sessionID)
}

// Positions fetches the session's positions.
func (c *Client) Positions(ctx context.Context, sessionID string) (*TradingResponse, error) {
	return c.trading(ctx, "positions", sessionID)
}

// Buy places a buy order and returns the broker receipt.
func (c *Client) Buy(ctx context.Context, sessionID string, order Order) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, "/worker/buy/"+url.PathEscape(sessionID), order)
}

// Sell places a sell order and returns the broker receipt.
func (c *Client) Sell(ctx context.Context, sessionID string, order Order) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, "/worker/sell/"+url.PathEscape(sessionID), order)
}

func (c *Client) trading(ctx context.Context, op, sessionID string) (*TradingResponse, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/worker/"+op+"/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}

	var resp TradingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return &resp, nil
}

// Do sends a request to the worker and returns the 2xx body verbatim.
// Connection failures wrap domain.ErrUpstreamUnreachable; worker errors are
// returned as *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", domain.ErrUpstreamUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, raw)
	}

	return raw, nil
}

func statusError(status int, raw []byte) *StatusError {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Detail == "" {
		text := strings.TrimSpace(string(raw))
		if len(text) > 100 {
			text = text[:100] + "..."
		}
		body.Detail = fmt.Sprintf("worker returned status %d: %s", status, text)
	}

	return &StatusError{StatusCode: status, Code: body.Error, Detail: body.Detail}
}
