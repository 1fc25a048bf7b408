package domain

import (
	"strings"
	"time"
)

const (
	// SessionTTL is the sliding expiry window of a stored trading session.
	// Every successful rehydration resets the countdown to this value.
	SessionTTL = 18 * time.Hour

	// EnvironmentProd is the broker environment used for every login.
	EnvironmentProd = "prod"

	// DefaultFinancialKey is stored when the broker does not report one.
	DefaultFinancialKey = "neotradeapi"

	// SessionKeyPrefix is the credential store namespace for session records.
	SessionKeyPrefix = "session"
)

// SessionRecord is the unit persisted in the credential store. It is written
// once by the authenticator and never modified afterwards, only its expiry is
// renewed on reads.
type SessionRecord struct {
	TradingToken     string `json:"TRADING_TOKEN"`
	TradingSessionID string `json:"TRADING_SID"`
	BaseURL          string `json:"BASE_URL,omitempty"`
	ConsumerKey      string `json:"consumer_key"`
	Environment      string `json:"environment"`
	FinancialKey     string `json:"neo_fin_key"`
}

// Valid reports whether the record carries a usable trading credential pair.
func (r *SessionRecord) Valid() bool {
	return r != nil && r.TradingToken != "" && r.TradingSessionID != ""
}

// SessionKey returns the store key for a session identifier.
func SessionKey(prefix, sessionID string) string {
	if prefix == "" {
		prefix = SessionKeyPrefix
	}
	return prefix + ":" + sessionID
}

// Credentials are the short-lived login inputs supplied by the caller.
type Credentials struct {
	TOTP         string `json:"totp"`
	ConsumerKey  string `json:"consumer_key"`
	MobileNumber string `json:"mobile_number"`
	UCC          string `json:"ucc"`
	MPIN         string `json:"mpin"`
}

// Validate checks the shape of the login request. Field formats are the
// broker's business; only presence and the TOTP length bounds are enforced.
func (c Credentials) Validate() error {
	switch {
	case len(c.TOTP) < 4 || len(c.TOTP) > 32:
		return NewInvalidRequest("totp must be between 4 and 32 characters")
	case strings.TrimSpace(c.ConsumerKey) == "":
		return NewInvalidRequest("consumer_key is required")
	case strings.TrimSpace(c.MobileNumber) == "":
		return NewInvalidRequest("mobile_number is required")
	case strings.TrimSpace(c.UCC) == "":
		return NewInvalidRequest("ucc is required")
	case strings.TrimSpace(c.MPIN) == "":
		return NewInvalidRequest("mpin is required")
	}
	return nil
}
