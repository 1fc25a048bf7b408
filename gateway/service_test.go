package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pilab-dev/neoproxy/broker/fake"
	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/internal/audit"
	"github.com/pilab-dev/neoproxy/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	audit.SetOutput(zerolog.Nop())
}

// MockRehydrator is a testify mock for Rehydrator.
type MockRehydrator struct {
	mock.Mock
}

func (m *MockRehydrator) Rehydrate(ctx context.Context, sessionID string) (domain.BrokerClient, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.BrokerClient), args.Error(1)
}

func TestBuildOrder(t *testing.T) {
	params, err := BuildOrder(Buy, OrderRequest{Qty: 10, Stock: "HAL"})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderParams{
		ExchangeSegment:   "nse_cm",
		Product:           "CNC",
		Price:             "0",
		OrderType:         "MKT",
		Quantity:          "10",
		Validity:          "DAY",
		TradingSymbol:     "HAL-EQ",
		TransactionType:   "B",
		AMO:               "YES",
		DisclosedQuantity: "0",
		MarketProtection:  "0",
		PF:                "N",
		TriggerPrice:      "0",
	}, params)

	raw, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"es":"nse_cm","pc":"CNC","pr":"0","pt":"MKT","qt":"10","rt":"DAY","ts":"HAL-EQ",
		"tt":"B","am":"YES","dq":"0","mp":"0","pf":"N","tp":"0"}`, string(raw))
}

func TestBuildOrder_SellNormalizesSymbol(t *testing.T) {
	params, err := BuildOrder(Sell, OrderRequest{Qty: 3, Stock: " infy "})
	require.NoError(t, err)
	assert.Equal(t, "S", params.TransactionType)
	assert.Equal(t, "INFY-EQ", params.TradingSymbol)
	assert.Equal(t, "3", params.Quantity)
}

func TestBuildOrder_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		side Side
		req  OrderRequest
	}{
		{"zero qty", Buy, OrderRequest{Qty: 0, Stock: "HAL"}},
		{"negative qty", Sell, OrderRequest{Qty: -1, Stock: "HAL"}},
		{"empty stock", Buy, OrderRequest{Qty: 1, Stock: "  "}},
		{"bad side", Side("X"), OrderRequest{Qty: 1, Stock: "HAL"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildOrder(tc.side, tc.req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func newFakeService(t *testing.T) (*Service, *fake.Broker, string) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	broker := fake.New()

	sessionID, err := session.NewAuthenticator(store, broker, nil, session.Options{}).
		Authenticate(context.Background(), domain.Credentials{
			TOTP: "123456", ConsumerKey: "ck1", MobileNumber: "9999999999", UCC: "UCC1", MPIN: "1234",
		})
	require.NoError(t, err)

	return NewService(session.NewRehydrator(store, broker, nil, session.Options{}), time.Second), broker, sessionID
}

func TestService_ReadOperationsPassThrough(t *testing.T) {
	svc, broker, sessionID := newFakeService(t)
	ctx := context.Background()

	holdings, err := svc.Holdings(ctx, sessionID)
	require.NoError(t, err)
	assert.JSONEq(t, string(broker.HoldingsBody), string(holdings))

	limits, err := svc.Limits(ctx, sessionID)
	require.NoError(t, err)
	assert.JSONEq(t, string(broker.LimitsBody), string(limits))

	positions, err := svc.Positions(ctx, sessionID)
	require.NoError(t, err)
	assert.JSONEq(t, string(broker.PositionsBody), string(positions))

	calls := broker.Calls()
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, "tok-A", call.Config.EditToken)
		assert.Equal(t, "sid-A", call.Config.EditSID)
	}
}

func TestService_BuyAndSell(t *testing.T) {
	svc, broker, sessionID := newFakeService(t)

	receipt, err := svc.Buy(context.Background(), sessionID, OrderRequest{Qty: 10, Stock: "HAL"})
	require.NoError(t, err)
	assert.JSONEq(t, string(broker.OrderReceipt), string(receipt))

	_, err = svc.Sell(context.Background(), sessionID, OrderRequest{Qty: 2, Stock: "HAL"})
	require.NoError(t, err)

	calls := broker.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "place_order", calls[0].Op)
	assert.Equal(t, "B", calls[0].Order.TransactionType)
	assert.Equal(t, "HAL-EQ", calls[0].Order.TradingSymbol)
	assert.Equal(t, "10", calls[0].Order.Quantity)
	assert.Equal(t, "S", calls[1].Order.TransactionType)
	assert.Equal(t, "2", calls[1].Order.Quantity)
}

func TestService_InvalidOrderSkipsRehydration(t *testing.T) {
	rehydrator := new(MockRehydrator)
	svc := NewService(rehydrator, 0)

	_, err := svc.Buy(context.Background(), "sid", OrderRequest{Qty: 0, Stock: "HAL"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	rehydrator.AssertNotCalled(t, "Rehydrate", mock.Anything, mock.Anything)
}

func TestService_RehydrationErrorsPropagate(t *testing.T) {
	for _, want := range []error{domain.ErrSessionNotFound, domain.ErrStoreUnavailable, domain.ErrCorruptSession} {
		rehydrator := new(MockRehydrator)
		rehydrator.On("Rehydrate", mock.Anything, "sid").Return(nil, want)

		_, err := NewService(rehydrator, 0).Holdings(context.Background(), "sid")
		assert.ErrorIs(t, err, want)
		assert.NotErrorIs(t, err, domain.ErrBrokerOperationFailed)
	}
}

func TestService_BrokerFailure(t *testing.T) {
	svc, broker, sessionID := newFakeService(t)

	broker.OpErr = &domain.BrokerError{Op: "holdings", StatusCode: http.StatusBadGateway, Message: "upstream down"}
	_, err := svc.Holdings(context.Background(), sessionID)
	require.ErrorIs(t, err, domain.ErrBrokerOperationFailed)

	var brokerErr *domain.BrokerError
	require.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, http.StatusBadGateway, brokerErr.StatusCode)

	broker.OpErr = errors.New("connection reset")
	_, err = svc.Limits(context.Background(), sessionID)
	require.ErrorIs(t, err, domain.ErrBrokerOperationFailed)
	require.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, "limits", brokerErr.Op)
	assert.Zero(t, brokerErr.StatusCode)
}

func TestService_MalformedBrokerPayload(t *testing.T) {
	svc, broker, sessionID := newFakeService(t)

	broker.HoldingsBody = json.RawMessage("")
	_, err := svc.Holdings(context.Background(), sessionID)
	require.ErrorIs(t, err, domain.ErrBrokerOperationFailed)

	var brokerErr *domain.BrokerError
	require.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, http.StatusBadGateway, brokerErr.StatusCode)
	assert.Equal(t, "holdings", brokerErr.Op)

	broker.OrderReceipt = json.RawMessage("<html>busy</html>")
	_, err = svc.Buy(context.Background(), sessionID, OrderRequest{Qty: 1, Stock: "HAL"})
	require.ErrorIs(t, err, domain.ErrBrokerOperationFailed)
}
