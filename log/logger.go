package log

import (
	"context"

	"github.com/rs/zerolog"
)

// Logger defines a standard interface for logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{}) // exits the process
	With(fields map[string]interface{}) Logger
	// Zerolog exposes the underlying logger so request-scoped code can use
	// zerolog's context helpers.
	Zerolog() zerolog.Logger
}
