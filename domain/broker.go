package domain

import (
	"context"
	"encoding/json"
)

// BrokerConfig is the credential configuration of a broker client. The
// login-time access token and the trading-time edit token/sid live in
// separate slots; trading calls need the latter.
type BrokerConfig struct {
	Environment  string
	ConsumerKey  string
	FinancialKey string
	AccessToken  string

	EditToken   string
	EditSID     string
	BaseURL     string
	BearerToken string
}

// Complete reports whether the trading credential pair is present.
func (c BrokerConfig) Complete() bool {
	return c.EditToken != "" && c.EditSID != ""
}

// TradingCredentials are the trading-time slots set on a rehydrated client.
type TradingCredentials struct {
	EditToken   string
	EditSID     string
	BaseURL     string
	BearerToken string
}

// OrderParams is the broker's place-order parameter set. Values are passed
// through verbatim; empty optional fields are omitted on the wire.
type OrderParams struct {
	ExchangeSegment   string `json:"es"`
	Product           string `json:"pc"`
	Price             string `json:"pr"`
	OrderType         string `json:"pt"`
	Quantity          string `json:"qt"`
	Validity          string `json:"rt"`
	TradingSymbol     string `json:"ts"`
	TransactionType   string `json:"tt"`
	AMO               string `json:"am"`
	DisclosedQuantity string `json:"dq"`
	MarketProtection  string `json:"mp"`
	PF                string `json:"pf"`
	TriggerPrice      string `json:"tp"`
	Tag               string `json:"ig,omitempty"`
	ScripToken        string `json:"tk,omitempty"`
	SquareOffType     string `json:"sot,omitempty"`
	StopLossType      string `json:"slt,omitempty"`
	StopLossValue     string `json:"slv,omitempty"`
	SquareOffValue    string `json:"sov,omitempty"`
	LastTradedPrice   string `json:"lat,omitempty"`
	TrailingStopLoss  string `json:"tlt,omitempty"`
	TrailingSLValue   string `json:"tsv,omitempty"`
}

// BrokerClient is a transient, per-request handle on the broker API.
type BrokerClient interface {
	// TOTPLogin is step one of the login: identity login producing a
	// short-lived view credential kept inside the client.
	TOTPLogin(ctx context.Context, mobileNumber, ucc, totp string) error
	// ValidateMPIN is step two: it upgrades the view credential into the
	// trading credential pair.
	ValidateMPIN(ctx context.Context, mpin string) error
	// Config returns a copy of the client's credential configuration.
	Config() BrokerConfig
	// SetTradingCredentials populates the trading-time slots.
	SetTradingCredentials(creds TradingCredentials)

	Holdings(ctx context.Context) (json.RawMessage, error)
	Limits(ctx context.Context) (json.RawMessage, error)
	Positions(ctx context.Context) (json.RawMessage, error)
	PlaceOrder(ctx context.Context, params OrderParams) (json.RawMessage, error)
}

// Broker builds broker clients.
type Broker interface {
	NewClient(cfg BrokerConfig) BrokerClient
}
