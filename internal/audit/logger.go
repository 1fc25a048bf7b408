package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"` // session fingerprint or UCC
	Target    string    `json:"target,omitempty"`  // instrument or resource
	Details   string    `json:"details,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var auditLogger = zerolog.New(os.Stdout).With().Logger()

// SetOutput replaces the audit sink. Tests use it to capture or silence events.
func SetOutput(l zerolog.Logger) {
	auditLogger = l
}

// Log records an audit event.
func Log(service, action, subject, target, details string, success bool, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Service:   service,
		Action:    action,
		Subject:   subject,
		Target:    target,
		Details:   details,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		log.Error().Err(marshalErr).Msg("Failed to marshal audit event to JSON")
		auditLogger.Error().
			Str("service", service).
			Str("action", action).
			Str("subject", subject).
			Str("target", target).
			Str("details", details).
			Bool("success", success).
			Err(err).
			Msg("Audit Log (fallback)")
		return
	}

	auditLogger.Log().RawJSON("audit_event", entry).Msg("")
}
