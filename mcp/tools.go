package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/workerclient"
)

// Worker is the part of the worker client the tools use.
type Worker interface {
	Holdings(ctx context.Context, sessionID string) (*workerclient.TradingResponse, error)
	Limits(ctx context.Context, sessionID string) (*workerclient.TradingResponse, error)
	Positions(ctx context.Context, sessionID string) (*workerclient.TradingResponse, error)
	Buy(ctx context.Context, sessionID string, order workerclient.Order) (json.RawMessage, error)
	Sell(ctx context.Context, sessionID string, order workerclient.Order) (json.RawMessage, error)
}

var _ Worker = (*workerclient.Client)(nil)

// holdingFields are the per-holding fields returned to the agent.
var holdingFields = []string{
	"instrumentName", "quantity", "averagePrice",
	"holdingCost", "closingPrice", "unrealisedGainLoss",
}

type tool struct {
	name        string
	description string
	inputSchema any
	readOnly    bool
	run         func(ctx context.Context, w Worker, sessionID string, args json.RawMessage) (json.RawMessage, error)
}

var emptySchema = map[string]any{"type": "object", "properties": map[string]any{}}

var orderSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"qty":   map[string]any{"type": "integer", "minimum": 1, "description": "Number of shares"},
		"stock": map[string]any{"type": "string", "description": `NSE symbol in capitals, e.g. "HAL"`},
	},
	"required": []string{"qty", "stock"},
}

func builtinTools() []*tool {
	return []*tool{
		{
			name:        "get_holdings",
			description: "Gets the current holdings of the client",
			inputSchema: emptySchema,
			readOnly:    true,
			run:         runHoldings,
		},
		{
			name:        "get_limits",
			description: "Gets the limits of the client",
			inputSchema: emptySchema,
			readOnly:    true,
			run: func(ctx context.Context, w Worker, sessionID string, _ json.RawMessage) (json.RawMessage, error) {
				return marshalResponse(w.Limits(ctx, sessionID))
			},
		},
		{
			name:        "get_positions",
			description: "Gets the positions of the client",
			inputSchema: emptySchema,
			readOnly:    true,
			run: func(ctx context.Context, w Worker, sessionID string, _ json.RawMessage) (json.RawMessage, error) {
				return marshalResponse(w.Positions(ctx, sessionID))
			},
		},
		{
			name:        "buy_order",
			description: "Places a BUY market order (delivery, NSE cash segment) for the client",
			inputSchema: orderSchema,
			run: func(ctx context.Context, w Worker, sessionID string, args json.RawMessage) (json.RawMessage, error) {
				order, err := parseOrder(args)
				if err != nil {
					return nil, err
				}
				return w.Buy(ctx, sessionID, order)
			},
		},
		{
			name:        "sell_order",
			description: "Places a SELL market order (delivery, NSE cash segment) for the client",
			inputSchema: orderSchema,
			run: func(ctx context.Context, w Worker, sessionID string, args json.RawMessage) (json.RawMessage, error) {
				order, err := parseOrder(args)
				if err != nil {
					return nil, err
				}
				return w.Sell(ctx, sessionID, order)
			},
		},
	}
}

func runHoldings(ctx context.Context, w Worker, sessionID string, _ json.RawMessage) (json.RawMessage, error) {
	resp, err := w.Holdings(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var holdings struct {
		Data []map[string]any `json:"data"`
	}
	if len(resp.Holdings) > 0 {
		if err := json.Unmarshal(resp.Holdings, &holdings); err != nil {
			return nil, fmt.Errorf("unexpected holdings payload: %w", err)
		}
	}

	filtered := make([]map[string]any, 0, len(holdings.Data))
	for _, item := range holdings.Data {
		out := make(map[string]any, len(holdingFields))
		for _, key := range holdingFields {
			out[key] = item[key]
		}
		filtered = append(filtered, out)
	}

	return json.Marshal(map[string]any{
		"message":  resp.Message,
		"holdings": filtered,
	})
}

func marshalResponse(resp *workerclient.TradingResponse, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// parseOrder accepts qty as a JSON number or a numeric string.
func parseOrder(args json.RawMessage) (workerclient.Order, error) {
	var raw struct {
		Qty   json.RawMessage `json:"qty"`
		Stock string          `json:"stock"`
	}
	if len(args) == 0 {
		return workerclient.Order{}, domain.NewInvalidRequest("qty and stock are required")
	}
	if err := json.Unmarshal(args, &raw); err != nil {
		return workerclient.Order{}, domain.NewInvalidRequest("invalid arguments: " + err.Error())
	}

	qtyText := strings.Trim(string(raw.Qty), `"`)
	qty, err := strconv.Atoi(qtyText)
	if err != nil || qty <= 0 {
		return workerclient.Order{}, domain.NewInvalidRequest("qty must be a positive integer")
	}
	if strings.TrimSpace(raw.Stock) == "" {
		return workerclient.Order{}, domain.NewInvalidRequest("stock is required")
	}

	return workerclient.Order{Qty: qty, Stock: raw.Stock}, nil
}

func toolErrorText(err error) string {
	var statusErr *workerclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Error()
	case errors.Is(err, domain.ErrUpstreamUnreachable):
		return "Cannot connect to Neo Worker service"
	default:
		return err.Error()
	}
}
