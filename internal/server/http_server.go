package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pilab-dev/neoproxy/config"
	"github.com/pilab-dev/neoproxy/log"
	"github.com/pilab-dev/neoproxy/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// RouteRegistrar is implemented by the worker and front APIs.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo, validateMW ...echo.MiddlewareFunc)
}

// NewHTTPServer creates and configures the echo HTTP server for either hop.
// The returned limiter must be stopped on shutdown.
func NewHTTPServer(
	cfg *config.ServerConfig,
	appLogger log.Logger,
	api RouteRegistrar,
	gatherer prometheus.Gatherer,
) (*http.Server, *middleware.RateLimiter) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(middleware.RequestLogger(appLogger.Zerolog()))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.ValidateRPS, cfg.RateLimit.ValidateBurst)
	if api == nil {
		appLogger.Error(context.Background(), "No API provided to NewHTTPServer, routes will not be registered.", nil)
	} else {
		api.RegisterRoutes(e, limiter.Middleware())
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Login runs two broker round trips plus a store write.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return srv, limiter
}
