package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/pilab-dev/neoproxy/domain"
)

// APIError is the JSON error body returned by every HTTP surface.
type APIError struct {
	Code   string `json:"error"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Error codes
const (
	InvalidRequest         = "invalid_request"
	AuthFailed             = "auth_failed"
	IncompleteCredentials  = "incomplete_credentials"
	SessionNotFound        = "session_not_found"
	CorruptSession         = "corrupt_session"
	BrokerOperationFailed  = "broker_operation_failed"
	StoreUnavailable       = "store_unavailable"
	UpstreamUnreachable    = "upstream_unreachable"
	UpstreamError          = "upstream_error"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

// Common error constructors
func NewInvalidRequest(detail string) *APIError {
	return &APIError{Code: InvalidRequest, Detail: detail}
}

func NewServerError(detail string) *APIError {
	return &APIError{Code: ServerError, Detail: detail}
}

func NewTooManyRequests() *APIError {
	return &APIError{Code: TemporarilyUnavailable, Detail: "too many requests"}
}

// NewUpstreamError wraps the detail reported by the worker hop.
func NewUpstreamError(code, detail string) *APIError {
	if code == "" {
		code = UpstreamError
	}
	return &APIError{Code: code, Detail: "worker error: " + detail}
}

// FromError maps an error from the session, gateway or relay layers to an
// HTTP status and body. Details never include broker response bodies.
func FromError(err error) (int, *APIError) {
	var brokerErr *domain.BrokerError

	switch {
	case err == nil:
		return http.StatusOK, nil
	case stderrors.Is(err, domain.ErrInvalidRequest):
		return http.StatusUnprocessableEntity, &APIError{Code: InvalidRequest, Detail: err.Error()}
	case stderrors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, &APIError{Code: StoreUnavailable, Detail: "Credential store is unavailable."}
	case stderrors.Is(err, domain.ErrAuthFailed):
		return http.StatusUnauthorized, &APIError{Code: AuthFailed, Detail: "Authentication failed."}
	case stderrors.Is(err, domain.ErrIncompleteCredentials):
		return http.StatusNotFound, &APIError{
			Code:   IncompleteCredentials,
			Detail: "MPIN validation succeeded, but trading credentials were not returned.",
		}
	case stderrors.Is(err, domain.ErrSessionNotFound):
		return http.StatusUnauthorized, &APIError{Code: SessionNotFound, Detail: "Session not found or expired."}
	case stderrors.Is(err, domain.ErrCorruptSession):
		return http.StatusInternalServerError, &APIError{Code: CorruptSession, Detail: "Failed to recreate client from session."}
	case stderrors.Is(err, domain.ErrUpstreamUnreachable):
		return http.StatusServiceUnavailable, &APIError{Code: UpstreamUnreachable, Detail: "Cannot connect to Neo Worker service."}
	case stderrors.Is(err, domain.ErrBrokerOperationFailed):
		status := http.StatusInternalServerError
		detail := "Broker operation failed."
		if stderrors.As(err, &brokerErr) {
			if brokerErr.StatusCode >= 400 && brokerErr.StatusCode <= 599 {
				status = brokerErr.StatusCode
			}
			detail = fmt.Sprintf("Error calling %s on the broker.", brokerErr.Op)
		}
		return status, &APIError{Code: BrokerOperationFailed, Detail: detail}
	default:
		return http.StatusInternalServerError, NewServerError("Internal server error.")
	}
}
