package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/workerclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSession = "2c5f8ebf-1ade-4746-bded-c4502a9f5d2e"

// MockWorker is a testify mock for Worker.
type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) Holdings(ctx context.Context, sessionID string) (*workerclient.TradingResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workerclient.TradingResponse), args.Error(1)
}

func (m *MockWorker) Limits(ctx context.Context, sessionID string) (*workerclient.TradingResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workerclient.TradingResponse), args.Error(1)
}

func (m *MockWorker) Positions(ctx context.Context, sessionID string) (*workerclient.TradingResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workerclient.TradingResponse), args.Error(1)
}

func (m *MockWorker) Buy(ctx context.Context, sessionID string, order workerclient.Order) (json.RawMessage, error) {
	args := m.Called(ctx, sessionID, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockWorker) Sell(ctx context.Context, sessionID string, order workerclient.Order) (json.RawMessage, error) {
	args := m.Called(ctx, sessionID, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

const initLine = `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test"}}}`

// session runs the server over the given request lines and returns the
// decoded responses in order.
func session(t *testing.T, worker Worker, lines ...string) []response {
	t.Helper()

	var out bytes.Buffer
	srv := NewServer(worker, testSession, "test")
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	var responses []response
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r response
		require.NoError(t, dec.Decode(&r))
		responses = append(responses, r)
	}
	return responses
}

func callLine(id int, name, args string) string {
	if args == "" {
		args = "{}"
	}
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, id, name, args)
}

func toolResult(t *testing.T, r response) toolsCallResult {
	t.Helper()
	require.Nil(t, r.Error)
	raw, err := json.Marshal(r.Result)
	require.NoError(t, err)
	var result toolsCallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Content, 1)
	return result
}

func TestProtocol(t *testing.T) {
	responses := session(t, new(MockWorker),
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`not json`,
		initLine,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
		`{"jsonrpc":"1.0","id":5,"method":"ping"}`,
		callLine(6, "add", `{"a":1,"b":2}`),
	)
	require.Len(t, responses, 8)

	assert.Equal(t, codeInvalidRequest, responses[0].Error.Code)
	assert.Equal(t, codeParseError, responses[1].Error.Code)
	assert.Nil(t, responses[2].Error)

	raw, err := json.Marshal(responses[3].Result)
	require.NoError(t, err)
	var list toolsListResult
	require.NoError(t, json.Unmarshal(raw, &list))
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"get_holdings", "get_limits", "get_positions", "buy_order", "sell_order"}, names)
	assert.True(t, *list.Tools[0].Annotations.ReadOnlyHint)
	assert.True(t, *list.Tools[3].Annotations.DestructiveHint)

	assert.Nil(t, responses[4].Error)
	assert.Equal(t, codeMethodNotFound, responses[5].Error.Code)
	assert.Equal(t, codeInvalidRequest, responses[6].Error.Code)
	assert.Equal(t, codeInvalidParams, responses[7].Error.Code)
}

func TestGetHoldingsFiltersFields(t *testing.T) {
	worker := new(MockWorker)
	worker.On("Holdings", mock.Anything, testSession).Return(&workerclient.TradingResponse{
		SessionID: testSession,
		Message:   "Holdings fetched",
		Holdings: json.RawMessage(`{"data":[{"instrumentName":"HAL","quantity":5,"averagePrice":4100.5,` +
			`"holdingCost":20502.5,"closingPrice":4210,"unrealisedGainLoss":547.5,"exchangeSegment":"nse_cm","isin":"INE066F01020"}]}`),
	}, nil)

	responses := session(t, worker, initLine, callLine(1, "get_holdings", ""))
	require.Len(t, responses, 2)

	result := toolResult(t, responses[1])
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"message":"Holdings fetched","holdings":[{"instrumentName":"HAL","quantity":5,"averagePrice":4100.5,
		"holdingCost":20502.5,"closingPrice":4210,"unrealisedGainLoss":547.5}]}`, result.Content[0].Text)
	worker.AssertExpectations(t)
}

func TestOrders(t *testing.T) {
	worker := new(MockWorker)
	worker.On("Buy", mock.Anything, testSession, workerclient.Order{Qty: 10, Stock: "HAL"}).
		Return(json.RawMessage(`{"nOrdNo":"1","stat":"Ok"}`), nil)
	worker.On("Sell", mock.Anything, testSession, workerclient.Order{Qty: 3, Stock: "BDL"}).
		Return(json.RawMessage(`{"nOrdNo":"2","stat":"Ok"}`), nil)

	responses := session(t, worker,
		initLine,
		callLine(1, "buy_order", `{"qty":10,"stock":"HAL"}`),
		callLine(2, "sell_order", `{"qty":"3","stock":"BDL"}`),
		callLine(3, "buy_order", `{"qty":0,"stock":"HAL"}`),
		callLine(4, "sell_order", `{"qty":1}`),
	)
	require.Len(t, responses, 5)

	assert.JSONEq(t, `{"nOrdNo":"1","stat":"Ok"}`, toolResult(t, responses[1]).Content[0].Text)
	assert.JSONEq(t, `{"nOrdNo":"2","stat":"Ok"}`, toolResult(t, responses[2]).Content[0].Text)
	assert.True(t, toolResult(t, responses[3]).IsError)
	assert.True(t, toolResult(t, responses[4]).IsError)
	worker.AssertExpectations(t)
}

func TestWorkerErrors(t *testing.T) {
	worker := new(MockWorker)
	worker.On("Limits", mock.Anything, testSession).
		Return(nil, &workerclient.StatusError{StatusCode: 401, Code: "session_not_found", Detail: "Session not found or expired."})
	worker.On("Positions", mock.Anything, testSession).
		Return(nil, fmt.Errorf("%w: dial tcp 127.0.0.1:8001: connection refused", domain.ErrUpstreamUnreachable))

	responses := session(t, worker, initLine, callLine(1, "get_limits", ""), callLine(2, "get_positions", ""))
	require.Len(t, responses, 3)

	limits := toolResult(t, responses[1])
	assert.True(t, limits.IsError)
	assert.Equal(t, "worker error: Session not found or expired.", limits.Content[0].Text)

	positions := toolResult(t, responses[2])
	assert.True(t, positions.IsError)
	assert.Equal(t, "Cannot connect to Neo Worker service", positions.Content[0].Text)
}
