package session

import (
	"bytes"
	"testing"

	"github.com/pilab-dev/neoproxy/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *domain.SessionRecord {
	return &domain.SessionRecord{
		TradingToken:     "tok-A",
		TradingSessionID: "sid-A",
		BaseURL:          "https://cis.kotaksecurities.com",
		ConsumerKey:      "ck1",
		Environment:      domain.EnvironmentProd,
		FinancialKey:     domain.DefaultFinancialKey,
	}
}

func TestCodec_PlainFieldNames(t *testing.T) {
	codec, err := NewCodec(nil)
	require.NoError(t, err)
	assert.False(t, codec.Sealed())

	data, err := codec.Encode(testRecord())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"TRADING_TOKEN": "tok-A",
		"TRADING_SID": "sid-A",
		"BASE_URL": "https://cis.kotaksecurities.com",
		"consumer_key": "ck1",
		"environment": "prod",
		"neo_fin_key": "neotradeapi"
	}`, string(data))

	rec, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, testRecord(), rec)
}

func TestCodec_RejectsIncompleteRecord(t *testing.T) {
	codec := &Codec{}

	rec := testRecord()
	rec.TradingSessionID = ""
	_, err := codec.Encode(rec)
	assert.ErrorIs(t, err, domain.ErrIncompleteCredentials)

	_, err = codec.Decode([]byte(`{"TRADING_TOKEN":"tok","consumer_key":"ck"}`))
	assert.ErrorIs(t, err, domain.ErrCorruptSession)
}

func TestCodec_DecodeRequiresClientFields(t *testing.T) {
	codec := &Codec{}

	tests := []struct {
		name  string
		field string
		clear func(*domain.SessionRecord)
	}{
		{"no consumer key", "consumer_key", func(r *domain.SessionRecord) { r.ConsumerKey = "" }},
		{"no environment", "environment", func(r *domain.SessionRecord) { r.Environment = "" }},
		{"no financial key", "neo_fin_key", func(r *domain.SessionRecord) { r.FinancialKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord()
			tt.clear(rec)

			// Encode only checks the trading token and session id.
			data, err := codec.Encode(rec)
			require.NoError(t, err)

			_, err = codec.Decode(data)
			require.ErrorIs(t, err, domain.ErrCorruptSession)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestCodec_Sealed(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	codec, err := NewCodec(key)
	require.NoError(t, err)
	assert.True(t, codec.Sealed())

	data, err := codec.Encode(testRecord())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tok-A")
	assert.True(t, bytes.HasPrefix(data, sealedPrefix))

	rec, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, testRecord(), rec)

	// Two encodings of the same record use different nonces.
	again, err := codec.Encode(testRecord())
	require.NoError(t, err)
	assert.NotEqual(t, data, again)
}

func TestCodec_SealedRejectsTampering(t *testing.T) {
	codec, err := NewCodec(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	data, err := codec.Encode(testRecord())
	require.NoError(t, err)

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-2] ^= 'A' ^ 'B'
	_, err = codec.Decode(tampered)
	assert.ErrorIs(t, err, domain.ErrCorruptSession)

	_, err = codec.Decode([]byte(`{"TRADING_TOKEN":"tok","TRADING_SID":"sid"}`))
	assert.ErrorIs(t, err, domain.ErrCorruptSession, "plain records are refused once sealing is on")

	other, err := NewCodec(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)
	_, err = other.Decode(data)
	assert.ErrorIs(t, err, domain.ErrCorruptSession)
}

func TestNewCodec_BadKey(t *testing.T) {
	_, err := NewCodec([]byte("short"))
	assert.Error(t, err)
}

func TestRecordFromConfig(t *testing.T) {
	rec := RecordFromConfig(domain.BrokerConfig{
		EditToken:    "tok",
		EditSID:      "sid",
		BaseURL:      "https://base",
		FinancialKey: "custom",
		AccessToken:  "ignored",
	}, "ck")

	assert.Equal(t, "tok", rec.TradingToken)
	assert.Equal(t, "sid", rec.TradingSessionID)
	assert.Equal(t, "https://base", rec.BaseURL)
	assert.Equal(t, "ck", rec.ConsumerKey)
	assert.Equal(t, "prod", rec.Environment)
	assert.Equal(t, "custom", rec.FinancialKey)

	rec = RecordFromConfig(domain.BrokerConfig{EditToken: "tok", EditSID: "sid"}, "ck")
	assert.Equal(t, domain.DefaultFinancialKey, rec.FinancialKey)
}
