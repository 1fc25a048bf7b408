//nolint:varnamelen
package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/errors"
	"github.com/pilab-dev/neoproxy/gateway"
	"github.com/rs/zerolog/log"
)

// Authenticator turns login credentials into a session id.
type Authenticator interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (string, error)
}

// Gateway runs trading operations for a session.
type Gateway interface {
	Holdings(ctx context.Context, sessionID string) (json.RawMessage, error)
	Limits(ctx context.Context, sessionID string) (json.RawMessage, error)
	Positions(ctx context.Context, sessionID string) (json.RawMessage, error)
	Buy(ctx context.Context, sessionID string, req gateway.OrderRequest) (json.RawMessage, error)
	Sell(ctx context.Context, sessionID string, req gateway.OrderRequest) (json.RawMessage, error)
}

// ValidateResponse is returned after a successful login.
type ValidateResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// WorkerAPI serves the /worker/... routes and runs the session core in-process.
type WorkerAPI struct {
	auth        Authenticator
	gateway     Gateway
	serviceName string
}

// NewWorkerAPI initializes the worker API.
func NewWorkerAPI(auth Authenticator, gw Gateway, serviceName string) *WorkerAPI {
	return &WorkerAPI{
		auth:        auth,
		gateway:     gw,
		serviceName: serviceName,
	}
}

// RegisterRoutes registers the worker routes. Middleware in validateMW is
// applied to the login route only.
func (wa *WorkerAPI) RegisterRoutes(e *echo.Echo, validateMW ...echo.MiddlewareFunc) {
	e.GET("/health", HealthHandler(wa.serviceName))

	w := e.Group("/worker")
	w.POST("/validate", wa.ValidateHandler, validateMW...)
	w.POST("/validate/", wa.ValidateHandler, validateMW...)
	w.GET("/holdings/:session_id", wa.HoldingsHandler)
	w.GET("/limits/:session_id", wa.LimitsHandler)
	w.GET("/positions/:session_id", wa.PositionsHandler)
	w.POST("/buy/:session_id", wa.BuyHandler)
	w.POST("/sell/:session_id", wa.SellHandler)
}

// ValidateHandler performs the broker login and returns a new session id.
func (wa *WorkerAPI) ValidateHandler(c echo.Context) error {
	var creds domain.Credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errors.NewInvalidRequest("Malformed request body"))
	}

	sessionID, err := wa.auth.Authenticate(c.Request().Context(), creds)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, ValidateResponse{
		SessionID: sessionID,
		Message:   "Authenticated. Trading session stored.",
	})
}

// HoldingsHandler returns the session's holdings.
func (wa *WorkerAPI) HoldingsHandler(c echo.Context) error {
	return wa.read(c, "holdings", "Holdings fetched", wa.gateway.Holdings)
}

// LimitsHandler returns the session's limits.
func (wa *WorkerAPI) LimitsHandler(c echo.Context) error {
	return wa.read(c, "limits", "Limits fetched", wa.gateway.Limits)
}

// PositionsHandler returns the session's positions.
func (wa *WorkerAPI) PositionsHandler(c echo.Context) error {
	return wa.read(c, "positions", "Positions fetched", wa.gateway.Positions)
}

// BuyHandler places a buy order and returns the broker receipt verbatim.
func (wa *WorkerAPI) BuyHandler(c echo.Context) error {
	return wa.order(c, wa.gateway.Buy)
}

// SellHandler places a sell order and returns the broker receipt verbatim.
func (wa *WorkerAPI) SellHandler(c echo.Context) error {
	return wa.order(c, wa.gateway.Sell)
}

func (wa *WorkerAPI) read(
	c echo.Context,
	field, message string,
	fn func(context.Context, string) (json.RawMessage, error),
) error {
	sessionID := c.Param("session_id")

	payload, err := fn(c.Request().Context(), sessionID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"message":    message,
		field:        payload,
	})
}

func (wa *WorkerAPI) order(
	c echo.Context,
	fn func(context.Context, string, gateway.OrderRequest) (json.RawMessage, error),
) error {
	var req gateway.OrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errors.NewInvalidRequest("Malformed order body"))
	}

	receipt, err := fn(c.Request().Context(), c.Param("session_id"), req)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSONBlob(http.StatusOK, receipt)
}

// HealthHandler reports liveness. It never touches the store or the broker.
func HealthHandler(serviceName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   serviceName,
		})
	}
}

func errorResponse(c echo.Context, err error) error {
	status, body := errors.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(c.Request().Context()).Error().Err(err).Int("status", status).Msg("Request failed")
	}
	return c.JSON(status, body)
}
