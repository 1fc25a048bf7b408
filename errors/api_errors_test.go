package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pilab-dev/neoproxy/domain"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid request", domain.NewInvalidRequest("qty must be positive"), http.StatusUnprocessableEntity, InvalidRequest},
		{"store unavailable", fmt.Errorf("%w: redis get: dial tcp", domain.ErrStoreUnavailable), http.StatusServiceUnavailable, StoreUnavailable},
		{"auth failed", domain.ErrAuthFailed, http.StatusUnauthorized, AuthFailed},
		{"incomplete", domain.ErrIncompleteCredentials, http.StatusNotFound, IncompleteCredentials},
		{"not found", domain.ErrSessionNotFound, http.StatusUnauthorized, SessionNotFound},
		{"corrupt", fmt.Errorf("%w: bad json", domain.ErrCorruptSession), http.StatusInternalServerError, CorruptSession},
		{"upstream", domain.ErrUpstreamUnreachable, http.StatusServiceUnavailable, UpstreamUnreachable},
		{"broker plain", domain.ErrBrokerOperationFailed, http.StatusInternalServerError, BrokerOperationFailed},
		{
			"broker with status",
			fmt.Errorf("%w: %w", domain.ErrBrokerOperationFailed, &domain.BrokerError{Op: "holdings", StatusCode: 502, Message: "secret"}),
			http.StatusBadGateway, BrokerOperationFailed,
		},
		{
			"broker transport",
			fmt.Errorf("%w: %w", domain.ErrBrokerOperationFailed, &domain.BrokerError{Op: "holdings"}),
			http.StatusInternalServerError, BrokerOperationFailed,
		},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := FromError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, body.Code)
			assert.NotContains(t, body.Detail, "secret")
		})
	}

	status, body := FromError(nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, body)
}

func TestNewUpstreamError(t *testing.T) {
	e := NewUpstreamError("", "Session not found or expired.")
	assert.Equal(t, UpstreamError, e.Code)
	assert.Equal(t, "worker error: Session not found or expired.", e.Detail)
	assert.Equal(t, "upstream_error: worker error: Session not found or expired.", e.Error())
}
