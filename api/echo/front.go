package echo

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/errors"
	"github.com/pilab-dev/neoproxy/internal/metrics"
	"github.com/pilab-dev/neoproxy/workerclient"
	"github.com/rs/zerolog/log"
)

// WorkerRelay sends a request to the worker hop. *workerclient.Client
// implements it.
type WorkerRelay interface {
	Do(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

var _ WorkerRelay = (*workerclient.Client)(nil)

// FrontAPI is the public hop: it validates input and forwards to the worker.
type FrontAPI struct {
	worker      WorkerRelay
	serviceName string
}

// NewFrontAPI initializes the front API.
func NewFrontAPI(worker WorkerRelay, serviceName string) *FrontAPI {
	return &FrontAPI{
		worker:      worker,
		serviceName: serviceName,
	}
}

// RegisterRoutes registers the front routes.
func (fa *FrontAPI) RegisterRoutes(e *echo.Echo, validateMW ...echo.MiddlewareFunc) {
	e.GET("/", fa.RootHandler)
	e.GET("/health", HealthHandler(fa.serviceName))

	e.POST("/validate", fa.ValidateHandler, validateMW...)
	e.GET("/holdings/get-holdings", fa.GetHoldingsHandler)

	w := e.Group("/worker")
	w.POST("/validate", fa.ValidateHandler, validateMW...)
	w.GET("/holdings/:session_id", fa.passThrough("holdings"))
	w.GET("/limits/:session_id", fa.passThrough("limits"))
	w.GET("/positions/:session_id", fa.passThrough("positions"))
	w.POST("/buy/:session_id", fa.passThrough("buy"))
	w.POST("/sell/:session_id", fa.passThrough("sell"))
}

// RootHandler answers the banner request.
func (fa *FrontAPI) RootHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Trading MCP backend running"})
}

// ValidateHandler checks the login body locally and forwards it.
func (fa *FrontAPI) ValidateHandler(c echo.Context) error {
	var creds domain.Credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errors.NewInvalidRequest("Malformed request body"))
	}
	if err := creds.Validate(); err != nil {
		return errorResponse(c, err)
	}

	return fa.relay(c, "validate", http.MethodPost, "/worker/validate", creds)
}

// GetHoldingsHandler forwards a holdings query to the worker.
func (fa *FrontAPI) GetHoldingsHandler(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusUnprocessableEntity, errors.NewInvalidRequest("session_id is required"))
	}

	return fa.relay(c, "holdings", http.MethodGet, "/worker/holdings/"+url.PathEscape(sessionID), nil)
}

// passThrough forwards /worker/<route>/:session_id unchanged.
func (fa *FrontAPI) passThrough(route string) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := "/worker/" + route + "/" + url.PathEscape(c.Param("session_id"))

		var body any
		if c.Request().Method == http.MethodPost {
			var order workerclient.Order
			if err := c.Bind(&order); err != nil {
				return c.JSON(http.StatusUnprocessableEntity, errors.NewInvalidRequest("Malformed order body"))
			}
			body = order
		}

		return fa.relay(c, route, c.Request().Method, path, body)
	}
}

func (fa *FrontAPI) relay(c echo.Context, route, method, path string, body any) error {
	ctx := c.Request().Context()

	raw, err := fa.worker.Do(ctx, method, path, body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(route, metrics.OutcomeFailure).Inc()

		var statusErr *workerclient.StatusError
		if stderrors.As(err, &statusErr) {
			return c.JSON(statusErr.StatusCode, errors.NewUpstreamError(statusErr.Code, statusErr.Detail))
		}

		log.Ctx(ctx).Error().Err(err).Str("route", route).Msg("Worker relay failed")
		return errorResponse(c, err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(route, metrics.OutcomeSuccess).Inc()
	return c.JSONBlob(http.StatusOK, raw)
}
