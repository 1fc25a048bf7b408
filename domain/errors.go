package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable means the credential store could not be reached or
	// did not answer in time.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrAuthFailed means the broker rejected the login or the MPIN step.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrIncompleteCredentials means the broker accepted the login but did not
	// hand out a trading token and session id.
	ErrIncompleteCredentials = errors.New("broker did not return trading credentials")
	// ErrSessionNotFound means the session id is unknown or has expired.
	ErrSessionNotFound = errors.New("session not found or expired")
	// ErrCorruptSession means a stored record could not be decoded.
	ErrCorruptSession = errors.New("stored session is corrupt")
	// ErrBrokerOperationFailed wraps any failure of a trading call.
	ErrBrokerOperationFailed = errors.New("broker operation failed")
	// ErrUpstreamUnreachable means the next proxy hop could not be reached.
	ErrUpstreamUnreachable = errors.New("upstream service unreachable")
	// ErrInvalidRequest means the caller sent malformed parameters.
	ErrInvalidRequest = errors.New("invalid request")
)

// NewInvalidRequest returns an ErrInvalidRequest carrying a reason.
func NewInvalidRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

// BrokerError is returned by broker capabilities when the broker answered
// with an error. StatusCode is zero for transport failures.
type BrokerError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *BrokerError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("broker %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("broker %s: %s", e.Op, msg)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}
