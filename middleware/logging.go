package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger attaches a request-scoped zerolog logger to the request
// context, so handlers and the core can log through log.Ctx, and writes one
// line per request.
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			lctx := base.With().Str("method", req.Method).Str("route", c.Path())
			if sc := trace.SpanFromContext(req.Context()).SpanContext(); sc.IsValid() {
				lctx = lctx.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
			}
			logger := lctx.Logger()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			// The path is logged as the route template: raw paths carry session ids.
			event := logger.Info()
			status := c.Response().Status
			if status >= 500 {
				event = logger.Error().Err(err)
			} else if status >= 400 {
				event = logger.Warn()
			}
			event.
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP Request")

			return nil
		}
	}
}
