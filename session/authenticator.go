package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/internal/audit"
	"github.com/pilab-dev/neoproxy/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/pilab-dev/neoproxy/session")

// Options holds the settings shared by the authenticator and the rehydrator.
type Options struct {
	// TTL is the sliding expiry of a session record. Defaults to domain.SessionTTL.
	TTL time.Duration
	// KeyPrefix namespaces session keys. Defaults to domain.SessionKeyPrefix.
	KeyPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = domain.SessionTTL
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = domain.SessionKeyPrefix
	}
	return o
}

// Authenticator performs the broker login handshake and stores the resulting
// trading session.
type Authenticator struct {
	store  cache.CredentialStore
	broker domain.Broker
	codec  *Codec
	opts   Options
	newID  func() string
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(store cache.CredentialStore, broker domain.Broker, codec *Codec, opts Options) *Authenticator {
	if codec == nil {
		codec = &Codec{}
	}
	return &Authenticator{
		store:  store,
		broker: broker,
		codec:  codec,
		opts:   opts.withDefaults(),
		newID:  uuid.NewString,
	}
}

// Authenticate runs TOTP login followed by MPIN validation and returns a new
// session id. Broker steps are never retried: TOTP and MPIN values are single
// use, so the caller has to come back with fresh ones.
func (a *Authenticator) Authenticate(ctx context.Context, creds domain.Credentials) (string, error) {
	ctx, span := tracer.Start(ctx, "session.Authenticate")
	defer span.End()

	if err := creds.Validate(); err != nil {
		return "", err
	}

	logger := log.Ctx(ctx).With().Str("ucc", creds.UCC).Logger()

	// Fail fast before spending the caller's TOTP on a session we cannot store.
	if a.store == nil {
		return "", a.fail(ctx, creds, "store_unavailable", domain.ErrStoreUnavailable)
	}
	if err := a.store.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Credential store unreachable, refusing login")
		return "", a.fail(ctx, creds, "store_unavailable", storeError(err))
	}

	client := a.broker.NewClient(domain.BrokerConfig{
		Environment: domain.EnvironmentProd,
		ConsumerKey: creds.ConsumerKey,
	})

	if err := client.TOTPLogin(ctx, creds.MobileNumber, creds.UCC, creds.TOTP); err != nil {
		logger.Warn().Err(err).Msg("TOTP login rejected by broker")
		return "", a.fail(ctx, creds, "auth_failed", domain.ErrAuthFailed)
	}

	if err := client.ValidateMPIN(ctx, creds.MPIN); err != nil {
		logger.Warn().Err(err).Msg("MPIN validation rejected by broker")
		return "", a.fail(ctx, creds, "auth_failed", domain.ErrAuthFailed)
	}

	cfg := client.Config()
	if !cfg.Complete() {
		logger.Error().
			Bool("has_token", cfg.EditToken != "").
			Bool("has_sid", cfg.EditSID != "").
			Msg("MPIN validation succeeded but trading credentials are missing")
		return "", a.fail(ctx, creds, "incomplete", domain.ErrIncompleteCredentials)
	}

	value, err := a.codec.Encode(RecordFromConfig(cfg, creds.ConsumerKey))
	if err != nil {
		return "", a.fail(ctx, creds, "encode_failed", err)
	}

	sessionID := a.newID()
	if err := a.store.Put(ctx, domain.SessionKey(a.opts.KeyPrefix, sessionID), value, a.opts.TTL); err != nil {
		logger.Error().Err(err).Msg("Failed to store trading session")
		return "", a.fail(ctx, creds, "store_unavailable", storeError(err))
	}

	fp := cache.Fingerprint(sessionID)
	span.SetAttributes(attribute.String("session.fingerprint", fp))
	metrics.LoginsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	audit.Log("Authenticator", "Login", creds.UCC, fp, "trading session stored", true, nil)
	logger.Info().Str("session", fp).Dur("ttl", a.opts.TTL).Msg("Trading session stored")

	return sessionID, nil
}

func (a *Authenticator) fail(ctx context.Context, creds domain.Credentials, outcome string, err error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	audit.Log("Authenticator", "Login", creds.UCC, "", outcome, false, err)

	return err
}

// storeError makes sure a store failure carries domain.ErrStoreUnavailable.
func storeError(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
