// Package session implements the trading-session lifecycle: turning a
// two-step broker login into a cached session record, and rebuilding an
// authenticated broker client from that record on every call.
package session

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pilab-dev/neoproxy/domain"
	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks a record encrypted by the codec.
var sealedPrefix = []byte("sealed.v1.")

// Codec serializes session records to the store's value format. Records are
// JSON objects with a fixed field set; when a seal key is configured the JSON
// is additionally encrypted with XChaCha20-Poly1305.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a codec. An empty key disables sealing; otherwise the key
// must be exactly 32 bytes.
func NewCodec(sealKey []byte) (*Codec, error) {
	if len(sealKey) == 0 {
		return &Codec{}, nil
	}

	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session seal key: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Sealed reports whether the codec encrypts records.
func (c *Codec) Sealed() bool {
	return c.aead != nil
}

// Encode serializes a record. Records without a trading token and session id
// are rejected so that a partial record can never reach the store.
func (c *Codec) Encode(rec *domain.SessionRecord) ([]byte, error) {
	if !rec.Valid() {
		return nil, domain.ErrIncompleteCredentials
	}

	plain, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session record: %w", err)
	}
	if c.aead == nil {
		return plain, nil
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)

	out := make([]byte, 0, len(sealedPrefix)+base64.RawStdEncoding.EncodedLen(len(sealed)))
	out = append(out, sealedPrefix...)
	out = append(out, base64.RawStdEncoding.EncodeToString(sealed)...)

	return out, nil
}

// Decode parses a stored value. Any failure, including a record missing one
// of its client fields, is reported as domain.ErrCorruptSession.
func (c *Codec) Decode(data []byte) (*domain.SessionRecord, error) {
	plain := data

	if c.aead != nil {
		if !bytes.HasPrefix(data, sealedPrefix) {
			return nil, fmt.Errorf("%w: record is not sealed", domain.ErrCorruptSession)
		}
		raw, err := base64.RawStdEncoding.DecodeString(string(data[len(sealedPrefix):]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSession, err)
		}
		if len(raw) < c.aead.NonceSize() {
			return nil, fmt.Errorf("%w: sealed record too short", domain.ErrCorruptSession)
		}
		nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
		plain, err = c.aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSession, err)
		}
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSession, err)
	}
	if !rec.Valid() {
		return nil, fmt.Errorf("%w: trading credentials missing", domain.ErrCorruptSession)
	}
	// Rehydration needs every field to rebuild the broker client.
	for _, f := range []struct{ name, value string }{
		{"consumer_key", rec.ConsumerKey},
		{"environment", rec.Environment},
		{"neo_fin_key", rec.FinancialKey},
	} {
		if f.value == "" {
			return nil, fmt.Errorf("%w: %s missing", domain.ErrCorruptSession, f.name)
		}
	}

	return &rec, nil
}

// RecordFromConfig builds the record persisted after a successful login.
func RecordFromConfig(cfg domain.BrokerConfig, consumerKey string) *domain.SessionRecord {
	finKey := cfg.FinancialKey
	if finKey == "" {
		finKey = domain.DefaultFinancialKey
	}

	return &domain.SessionRecord{
		TradingToken:     cfg.EditToken,
		TradingSessionID: cfg.EditSID,
		BaseURL:          cfg.BaseURL,
		ConsumerKey:      consumerKey,
		Environment:      domain.EnvironmentProd,
		FinancialKey:     finKey,
	}
}
