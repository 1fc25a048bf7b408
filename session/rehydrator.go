package session

import (
	"context"
	"errors"

	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Rehydrator rebuilds an authenticated broker client from a stored session.
// Nothing is cached in-process: every call goes back to the store, so any
// instance can serve any session id.
type Rehydrator struct {
	store  cache.CredentialStore
	broker domain.Broker
	codec  *Codec
	opts   Options
}

// NewRehydrator creates a new Rehydrator.
func NewRehydrator(store cache.CredentialStore, broker domain.Broker, codec *Codec, opts Options) *Rehydrator {
	if codec == nil {
		codec = &Codec{}
	}
	return &Rehydrator{
		store:  store,
		broker: broker,
		codec:  codec,
		opts:   opts.withDefaults(),
	}
}

// Rehydrate loads the session record for sessionID, builds a broker client
// carrying its trading credentials and renews the record's expiry.
//
// Errors: domain.ErrStoreUnavailable, domain.ErrSessionNotFound,
// domain.ErrCorruptSession.
func (r *Rehydrator) Rehydrate(ctx context.Context, sessionID string) (domain.BrokerClient, error) {
	ctx, span := tracer.Start(ctx, "session.Rehydrate")
	defer span.End()

	fp := cache.Fingerprint(sessionID)
	span.SetAttributes(attribute.String("session.fingerprint", fp))
	logger := log.Ctx(ctx).With().Str("session", fp).Logger()

	if r.store == nil {
		return nil, r.fail(ctx, "store_unavailable", domain.ErrStoreUnavailable)
	}
	if sessionID == "" {
		return nil, r.fail(ctx, "not_found", domain.ErrSessionNotFound)
	}

	key := domain.SessionKey(r.opts.KeyPrefix, sessionID)

	data, err := r.store.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		logger.Debug().Msg("Session not found or expired")
		return nil, r.fail(ctx, "not_found", domain.ErrSessionNotFound)
	} else if err != nil {
		logger.Error().Err(err).Msg("Credential store read failed")
		return nil, r.fail(ctx, "store_unavailable", storeError(err))
	}

	rec, err := r.codec.Decode(data)
	if err != nil {
		logger.Error().Err(err).Msg("Stored session could not be decoded")
		return nil, r.fail(ctx, "corrupt", err)
	}

	client := r.broker.NewClient(domain.BrokerConfig{
		Environment:  rec.Environment,
		AccessToken:  rec.TradingToken,
		FinancialKey: rec.FinancialKey,
		ConsumerKey:  rec.ConsumerKey,
	})
	// The generic access token slot is not what trading endpoints read; the
	// edit token, edit sid and base url must all be set. The bearer slot is
	// mirrored for client code paths that look there instead.
	client.SetTradingCredentials(domain.TradingCredentials{
		EditToken:   rec.TradingToken,
		EditSID:     rec.TradingSessionID,
		BaseURL:     rec.BaseURL,
		BearerToken: rec.TradingToken,
	})

	// Best effort: a lost renewal only shortens the session.
	if err := r.store.RefreshTTL(ctx, key, r.opts.TTL); err != nil {
		metrics.TTLRenewalFailuresTotal.Inc()
		logger.Warn().Err(err).Msg("Failed to renew session TTL")
	}

	metrics.RehydrationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return client, nil
}

func (r *Rehydrator) fail(ctx context.Context, outcome string, err error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	metrics.RehydrationsTotal.WithLabelValues(outcome).Inc()
	return err
}
