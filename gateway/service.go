// Package gateway runs trading operations on behalf of a session: it
// rehydrates a broker client from the credential store and relays the call.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/internal/audit"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/pilab-dev/neoproxy/gateway")

// Rehydrator rebuilds a broker client for a session id.
type Rehydrator interface {
	Rehydrate(ctx context.Context, sessionID string) (domain.BrokerClient, error)
}

// Service is the operation gateway.
type Service struct {
	rehydrator Rehydrator
	timeout    time.Duration
}

// NewService creates a new Service. A zero timeout leaves broker calls bound
// only by the caller's context.
func NewService(rehydrator Rehydrator, timeout time.Duration) *Service {
	return &Service{
		rehydrator: rehydrator,
		timeout:    timeout,
	}
}

// Holdings returns the session's holdings verbatim.
func (s *Service) Holdings(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.call(ctx, "holdings", sessionID, func(ctx context.Context, c domain.BrokerClient) (json.RawMessage, error) {
		return c.Holdings(ctx)
	})
}

// Limits returns the session's account limits verbatim.
func (s *Service) Limits(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.call(ctx, "limits", sessionID, func(ctx context.Context, c domain.BrokerClient) (json.RawMessage, error) {
		return c.Limits(ctx)
	})
}

// Positions returns the session's positions verbatim.
func (s *Service) Positions(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.call(ctx, "positions", sessionID, func(ctx context.Context, c domain.BrokerClient) (json.RawMessage, error) {
		return c.Positions(ctx)
	})
}

// Buy places a buy order and returns the broker receipt.
func (s *Service) Buy(ctx context.Context, sessionID string, req OrderRequest) (json.RawMessage, error) {
	return s.placeOrder(ctx, sessionID, Buy, req)
}

// Sell places a sell order and returns the broker receipt.
func (s *Service) Sell(ctx context.Context, sessionID string, req OrderRequest) (json.RawMessage, error) {
	return s.placeOrder(ctx, sessionID, Sell, req)
}

func (s *Service) placeOrder(ctx context.Context, sessionID string, side Side, req OrderRequest) (json.RawMessage, error) {
	// Shape first: a malformed order must not touch the store.
	params, err := BuildOrder(side, req)
	if err != nil {
		return nil, err
	}

	receipt, err := s.call(ctx, "place_order", sessionID, func(ctx context.Context, c domain.BrokerClient) (json.RawMessage, error) {
		return c.PlaceOrder(ctx, params)
	})

	details := fmt.Sprintf("%s %s x%s", params.TransactionType, params.TradingSymbol, params.Quantity)
	audit.Log("Gateway", "PlaceOrder", cache.Fingerprint(sessionID), params.TradingSymbol, details, err == nil, err)

	return receipt, err
}

func (s *Service) call(
	ctx context.Context,
	op, sessionID string,
	fn func(context.Context, domain.BrokerClient) (json.RawMessage, error),
) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "gateway."+op)
	defer span.End()
	span.SetAttributes(attribute.String("session.fingerprint", cache.Fingerprint(sessionID)))

	client, err := s.rehydrator.Rehydrate(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rehydrate")
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body, err := fn(ctx, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		log.Ctx(ctx).Error().Err(err).Str("op", op).Msg("Broker operation failed")

		var brokerErr *domain.BrokerError
		if errors.As(err, &brokerErr) {
			return nil, fmt.Errorf("%w: %w", domain.ErrBrokerOperationFailed, brokerErr)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrBrokerOperationFailed, &domain.BrokerError{Op: op, Err: err})
	}
	// Payloads are relayed verbatim, so anything that is not a JSON document
	// would break the response envelope.
	if !json.Valid(body) {
		span.SetStatus(codes.Error, op)
		log.Ctx(ctx).Error().Str("op", op).Int("bytes", len(body)).Msg("Broker returned a malformed payload")
		return nil, fmt.Errorf("%w: %w", domain.ErrBrokerOperationFailed,
			&domain.BrokerError{Op: op, StatusCode: http.StatusBadGateway, Message: "malformed response"})
	}

	return body, nil
}
