package gateway

import (
	"strconv"
	"strings"

	"github.com/pilab-dev/neoproxy/domain"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "B"
	Sell Side = "S"
)

// OrderRequest is a caller's order intent.
type OrderRequest struct {
	Qty   int    `json:"qty"`
	Stock string `json:"stock"`
}

// Validate checks the order request.
func (r OrderRequest) Validate() error {
	if r.Qty <= 0 {
		return domain.NewInvalidRequest("qty must be a positive integer")
	}
	if strings.TrimSpace(r.Stock) == "" {
		return domain.NewInvalidRequest("stock is required")
	}
	return nil
}

// BuildOrder shapes an order request into the broker's parameter set. Every
// order is an after-market, day-valid market order on the NSE cash segment
// for delivery.
func BuildOrder(side Side, req OrderRequest) (domain.OrderParams, error) {
	if side != Buy && side != Sell {
		return domain.OrderParams{}, domain.NewInvalidRequest("unknown order side")
	}
	if err := req.Validate(); err != nil {
		return domain.OrderParams{}, err
	}

	return domain.OrderParams{
		ExchangeSegment:   "nse_cm",
		Product:           "CNC",
		Price:             "0",
		OrderType:         "MKT",
		Quantity:          strconv.Itoa(req.Qty),
		Validity:          "DAY",
		TradingSymbol:     strings.ToUpper(strings.TrimSpace(req.Stock)) + "-EQ",
		TransactionType:   string(side),
		AMO:               "YES",
		DisclosedQuantity: "0",
		MarketProtection:  "0",
		PF:                "N",
		TriggerPrice:      "0",
	}, nil
}
