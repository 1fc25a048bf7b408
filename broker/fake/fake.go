// Package fake provides an in-memory broker for tests and local development.
// It mimics the login handshake of the real broker: trading calls only work
// once the trading token and session id slots are populated.
package fake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/pilab-dev/neoproxy/domain"
)

// Call records a trading call received by the fake broker together with the
// client configuration it was made with.
type Call struct {
	Op     string
	Config domain.BrokerConfig
	Order  *domain.OrderParams
}

// Broker is a scripted broker. Exported fields may be changed by tests
// before clients are created.
type Broker struct {
	TradingToken     string
	TradingSessionID string
	BaseURL          string
	FinancialKey     string

	TOTPErr error
	MPINErr error
	OpErr   error

	HoldingsBody  json.RawMessage
	LimitsBody    json.RawMessage
	PositionsBody json.RawMessage
	OrderReceipt  json.RawMessage

	mu      sync.Mutex
	clients int
	logins  int
	calls   []Call
}

var _ domain.Broker = (*Broker)(nil)

// New returns a fake broker with a working login and canned responses.
func New() *Broker {
	return &Broker{
		TradingToken:     "tok-A",
		TradingSessionID: "sid-A",
		BaseURL:          "https://fake.broker.local/api",
		HoldingsBody: json.RawMessage(`{"data":[{"instrumentName":"HAL","quantity":5,"averagePrice":4100.5,` +
			`"holdingCost":20502.5,"closingPrice":4210,"unrealisedGainLoss":547.5,"exchangeSegment":"nse_cm"}]}`),
		LimitsBody:    json.RawMessage(`{"Net":"125000.00","CollateralValue":"0.00","stat":"Ok"}`),
		PositionsBody: json.RawMessage(`{"data":[],"stat":"Ok"}`),
		OrderReceipt:  json.RawMessage(`{"nOrdNo":"250101000000001","stat":"Ok","stCode":200}`),
	}
}

// NewClient implements domain.Broker.
func (b *Broker) NewClient(cfg domain.BrokerConfig) domain.BrokerClient {
	b.mu.Lock()
	b.clients++
	b.mu.Unlock()

	return &Client{broker: b, cfg: cfg}
}

// ClientsCreated returns how many clients were built.
func (b *Broker) ClientsCreated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients
}

// Logins returns how many TOTP login attempts reached the broker.
func (b *Broker) Logins() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins
}

// Calls returns a copy of the recorded trading calls.
func (b *Broker) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Client is a fake broker client.
type Client struct {
	broker *Broker

	mu        sync.Mutex
	cfg       domain.BrokerConfig
	viewToken string
}

// TOTPLogin implements domain.BrokerClient.
func (c *Client) TOTPLogin(_ context.Context, mobileNumber, ucc, totp string) error {
	c.broker.mu.Lock()
	c.broker.logins++
	c.broker.mu.Unlock()

	if c.broker.TOTPErr != nil {
		return c.broker.TOTPErr
	}
	if mobileNumber == "" || ucc == "" || totp == "" {
		return &domain.BrokerError{Op: "totp_login", StatusCode: http.StatusBadRequest, Message: "missing login fields"}
	}

	c.mu.Lock()
	c.viewToken = "view-" + ucc
	c.mu.Unlock()

	return nil
}

// ValidateMPIN implements domain.BrokerClient.
func (c *Client) ValidateMPIN(_ context.Context, mpin string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viewToken == "" {
		return errors.New("mpin validation before totp login")
	}
	if c.broker.MPINErr != nil {
		return c.broker.MPINErr
	}
	if mpin == "" {
		return &domain.BrokerError{Op: "validate_mpin", StatusCode: http.StatusBadRequest, Message: "missing mpin"}
	}

	c.cfg.EditToken = c.broker.TradingToken
	c.cfg.EditSID = c.broker.TradingSessionID
	c.cfg.BaseURL = c.broker.BaseURL
	c.cfg.FinancialKey = c.broker.FinancialKey

	return nil
}

// Config implements domain.BrokerClient.
func (c *Client) Config() domain.BrokerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
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

// Holdings implements domain.BrokerClient.
func (c *Client) Holdings(_ context.Context) (json.RawMessage, error) {
	return c.trade("holdings", nil, c.broker.HoldingsBody)
}

// Limits implements domain.BrokerClient.
func (c *Client) Limits(_ context.Context) (json.RawMessage, error) {
	return c.trade("limits", nil, c.broker.LimitsBody)
}

// Positions implements domain.BrokerClient.
func (c *Client) Positions(_ context.Context) (json.RawMessage, error) {
	return c.trade("positions", nil, c.broker.PositionsBody)
}

// PlaceOrder implements domain.BrokerClient.
func (c *Client) PlaceOrder(_ context.Context, params domain.OrderParams) (json.RawMessage, error) {
	return c.trade("place_order", &params, c.broker.OrderReceipt)
}

func (c *Client) trade(op string, order *domain.OrderParams, body json.RawMessage) (json.RawMessage, error) {
	cfg := c.Config()

	c.broker.mu.Lock()
	c.broker.calls = append(c.broker.calls, Call{Op: op, Config: cfg, Order: order})
	c.broker.mu.Unlock()

	if !cfg.Complete() {
		return nil, &domain.BrokerError{Op: op, StatusCode: http.StatusUnauthorized, Message: "trading session not established"}
	}
	if c.broker.OpErr != nil {
		return nil, c.broker.OpErr
	}

	return body, nil
}
