// Package neo implements the broker capability against the Kotak Neo trade
// REST API.
package neo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultLoginURL = "https://mis.kotaksecurities.com/login/1.0"
	DefaultBaseURL  = "https://cis.kotaksecurities.com"
	DefaultTimeout  = 15 * time.Second

	loginPath    = "/tradeApiLogin"
	validatePath = "/tradeApiValidate"

	holdingsPath   = "/portfolio/v1/holdings"
	limitsPath     = "/quick/user/limits"
	positionsPath  = "/quick/user/positions"
	placeOrderPath = "/quick/order/rule/ms/place"

	// maxErrorBody caps how much of a failed response is kept in a BrokerError.
	maxErrorBody = 512
)

// Options configures the Neo broker.
type Options struct {
	LoginURL string
	Timeout  time.Duration
	// HTTPClient overrides the instrumented default client. Tests use it to
	// point at an httptest server.
	HTTPClient *http.Client
}

// Broker creates Neo REST clients. It is safe for concurrent use.
type Broker struct {
	loginURL string
	http     *http.Client
}

var _ domain.Broker = (*Broker)(nil)

// New creates a new Neo broker.
func New(opts Options) *Broker {
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Broker{
		loginURL: strings.TrimRight(opts.LoginURL, "/"),
		http:     httpClient,
	}
}

// NewClient implements domain.Broker.
func (b *Broker) NewClient(cfg domain.BrokerConfig) domain.BrokerClient {
	if cfg.FinancialKey == "" {
		cfg.FinancialKey = domain.DefaultFinancialKey
	}
	return &Client{broker: b, cfg: cfg}
}

// Client talks to the Neo API on behalf of a single user session.
type Client struct {
	broker *Broker

	mu        sync.RWMutex
	cfg       domain.BrokerConfig
	viewToken string
	viewSID   string
}

type loginRequest struct {
	MobileNumber string `json:"mobileNumber"`
	UCC          string `json:"ucc"`
	TOTP         string `json:"totp"`
}

type mpinRequest struct {
	MPIN string `json:"mpin"`
}

type loginResponse struct {
	Data struct {
		Token   string `json:"token"`
		SID     string `json:"sid"`
		BaseURL string `json:"baseUrl"`
		Status  string `json:"status"`
	} `json:"data"`
}

// TOTPLogin performs the first login step and keeps the view token and sid
// for the MPIN step.
func (c *Client) TOTPLogin(ctx context.Context, mobileNumber, ucc, totp string) error {
	cfg := c.Config()

	var resp loginResponse
	err := c.broker.doJSON(ctx, "totp_login", c.broker.loginURL+loginPath, map[string]string{
		"Authorization": cfg.ConsumerKey,
		"neo-fin-key":   cfg.FinancialKey,
	}, loginRequest{MobileNumber: mobileNumber, UCC: ucc, TOTP: totp}, &resp)
	if err != nil {
		return err
	}
	if resp.Data.Token == "" || resp.Data.SID == "" {
		return &domain.BrokerError{Op: "totp_login", StatusCode: http.StatusUnauthorized, Message: "login response without view token"}
	}

	c.mu.Lock()
	c.viewToken = resp.Data.Token
	c.viewSID = resp.Data.SID
	c.mu.Unlock()

	return nil
}

// ValidateMPIN performs the second login step. On success the trading token,
// trading sid and base url slots of the configuration are populated.
func (c *Client) ValidateMPIN(ctx context.Context, mpin string) error {
	c.mu.RLock()
	cfg, viewToken, viewSID := c.cfg, c.viewToken, c.viewSID
	c.mu.RUnlock()

	if viewToken == "" {
		return &domain.BrokerError{Op: "validate_mpin", StatusCode: http.StatusUnauthorized, Message: "totp login required first"}
	}

	var resp loginResponse
	err := c.broker.doJSON(ctx, "validate_mpin", c.broker.loginURL+validatePath, map[string]string{
		"Authorization": cfg.ConsumerKey,
		"neo-fin-key":   cfg.FinancialKey,
		"sid":           viewSID,
		"Auth":          viewToken,
	}, mpinRequest{MPIN: mpin}, &resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg.EditToken = resp.Data.Token
	c.cfg.EditSID = resp.Data.SID
	c.cfg.BaseURL = resp.Data.BaseURL
	c.mu.Unlock()

	return nil
}

// Config implements domain.BrokerClient.
func (c *Client) Config() domain.BrokerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetTradingCredentials implements domain.BrokerClient.
func (c *Client) SetTradingCredentials(creds domain.TradingCredentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.EditToken = creds.EditToken
	c.cfg.EditSID = creds.EditSID
	c.cfg.BaseURL = creds.BaseURL
	c.cfg.BearerToken = creds.BearerToken
}

// Holdings returns the portfolio holdings.
func (c *Client) Holdings(ctx context.Context) (json.RawMessage, error) {
	return c.trade(ctx, "holdings", http.MethodGet, holdingsPath, nil)
}

// Limits returns the account limits across all segments.
func (c *Client) Limits(ctx context.Context) (json.RawMessage, error) {
	return c.trade(ctx, "limits", http.MethodPost, limitsPath, map[string]string{
		"seg":  "ALL",
		"exch": "ALL",
		"prod": "ALL",
	})
}

// Positions returns the day's positions.
func (c *Client) Positions(ctx context.Context) (json.RawMessage, error) {
	return c.trade(ctx, "positions", http.MethodGet, positionsPath, nil)
}

// PlaceOrder submits an order and returns the broker receipt.
func (c *Client) PlaceOrder(ctx context.Context, params domain.OrderParams) (json.RawMessage, error) {
	return c.trade(ctx, "place_order", http.MethodPost, placeOrderPath, params)
}

// authToken picks the token trading endpoints authenticate with. The edit
// token is preferred; the bearer and access slots are fallbacks.
func authToken(cfg domain.BrokerConfig) string {
	switch {
	case cfg.EditToken != "":
		return cfg.EditToken
	case cfg.BearerToken != "":
		return cfg.BearerToken
	default:
		return cfg.AccessToken
	}
}

func (c *Client) trade(ctx context.Context, op, method, path string, jData any) (json.RawMessage, error) {
	start := time.Now()
	body, err := c.doTrade(ctx, op, method, path, jData)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	metrics.BrokerCallsTotal.WithLabelValues(op, outcome).Inc()
	metrics.BrokerCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	return body, err
}

func (c *Client) doTrade(ctx context.Context, op, method, path string, jData any) (json.RawMessage, error) {
	cfg := c.Config()

	token := authToken(cfg)
	if token == "" || cfg.EditSID == "" {
		return nil, &domain.BrokerError{Op: op, StatusCode: http.StatusUnauthorized, Message: "trading session not established"}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	endpoint := strings.TrimRight(baseURL, "/") + path

	var reqBody io.Reader
	if jData != nil {
		raw, err := json.Marshal(jData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		reqBody = strings.NewReader(url.Values{"jData": {string(raw)}}.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Auth", token)
	req.Header.Set("Sid", cfg.EditSID)
	req.Header.Set("neo-fin-key", cfg.FinancialKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if method == http.MethodGet {
		q := req.URL.Query()
		q.Set("sId", cfg.EditSID)
		req.URL.RawQuery = q.Encode()
	}

	return c.broker.do(op, req)
}

func (b *Broker) doJSON(ctx context.Context, op, endpoint string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := b.do(op, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.BrokerError{Op: op, StatusCode: http.StatusBadGateway, Message: "malformed response", Err: err}
	}

	return nil
}

// do executes the request and returns the body of a 2xx response. Transport
// failures and non-2xx statuses become *domain.BrokerError.
func (b *Broker) do(op string, req *http.Request) (json.RawMessage, error) {
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, &domain.BrokerError{Op: op, Message: "broker unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.BrokerError{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &domain.BrokerError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if !json.Valid(body) {
		return nil, &domain.BrokerError{Op: op, StatusCode: http.StatusBadGateway, Message: "malformed response"}
	}

	return json.RawMessage(body), nil
}
