package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiecho "github.com/pilab-dev/neoproxy/api/echo"
	"github.com/pilab-dev/neoproxy/broker/fake"
	"github.com/pilab-dev/neoproxy/broker/neo"
	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/cache/redis"
	"github.com/pilab-dev/neoproxy/config"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/gateway"
	"github.com/pilab-dev/neoproxy/internal/metrics"
	"github.com/pilab-dev/neoproxy/internal/server"
	"github.com/pilab-dev/neoproxy/internal/telemetry"
	"github.com/pilab-dev/neoproxy/log"
	"github.com/pilab-dev/neoproxy/session"
	"github.com/pilab-dev/neoproxy/tracing"
	"github.com/pilab-dev/neoproxy/workerclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	appLogger      log.Logger
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.Log.Level)
	if parseErr != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Warn().
			Str("configured_log_level", cfg.Log.Level).
			Str("fallback_log_level", logLevel.String()).
			Msg("Invalid log.level configured, defaulting to 'info'")
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.Log.Pretty)
	zlog.Logger = appLogger.Zerolog()
	zerolog.DefaultContextLogger = &zlog.Logger

	ctx := context.Background()
	appLogger.Info(ctx, "Starting neoproxy server...", map[string]interface{}{
		"role":         cfg.Role,
		"http_port":    cfg.HTTPPort,
		"service_name": cfg.ServiceName,
		"store":        cfg.Store.Kind,
		"broker":       cfg.Broker.Kind,
		"tracing":      cfg.Tracing.Enabled,
	})

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracerProvider(cfg.ServiceName, os.Stdout)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
		}
		tracerProvider = tp
		appLogger.Info(ctx, "TracerProvider initialized.")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(reg)
	meterProvider, err := telemetry.InitMeterProvider(reg, cfg.ServiceName, cfg.Role)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
	}

	var (
		api     server.RouteRegistrar
		closers []io.Closer
	)

	switch cfg.Role {
	case config.RoleWorker:
		workerAPI, store, err := buildWorker(ctx, cfg)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize worker", err)
		}
		api = workerAPI
		closers = append(closers, store)
	case config.RoleFront:
		api = apiecho.NewFrontAPI(workerclient.New(cfg.Worker.URL, cfg.Worker.Timeout), cfg.ServiceName)
		appLogger.Info(ctx, "Front API relays to worker", map[string]interface{}{"worker_url": cfg.Worker.URL})
	}

	httpServer, limiter := server.NewHTTPServer(cfg, appLogger, api, reg)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	limiter.Stop()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			appLogger.Error(shutdownCtx, "Failed to close credential store", err)
		}
	}

	telemetry.Shutdown(shutdownCtx, tracerProvider, meterProvider)

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}

// buildWorker wires the session lifecycle and the operation gateway.
func buildWorker(ctx context.Context, cfg *config.ServerConfig) (*apiecho.WorkerAPI, cache.CredentialStore, error) {
	var store cache.CredentialStore
	switch cfg.Store.Kind {
	case "memory":
		store = cache.NewMemoryStore()
		appLogger.Warn(ctx, "Using in-process credential store; sessions are lost on restart")
	default:
		redisStore, err := redis.Open(ctx, redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			OpTimeout: cfg.Redis.OpTimeout,
		})
		if err != nil {
			// Logins fail fast with 503 until Redis comes back.
			appLogger.Error(ctx, "Redis is not reachable at startup", err, map[string]interface{}{"addr": cfg.Redis.Addr})
		}
		store = redisStore
	}

	sealKey, err := cfg.SealKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	codec, err := session.NewCodec(sealKey)
	if err != nil {
		return nil, nil, err
	}

	var broker domain.Broker
	switch cfg.Broker.Kind {
	case "fake":
		broker = fake.New()
		appLogger.Warn(ctx, "Using the fake broker")
	default:
		broker = neo.New(neo.Options{
			LoginURL: cfg.Broker.LoginURL,
			Timeout:  cfg.Broker.Timeout,
		})
	}

	opts := session.Options{TTL: cfg.Session.TTL, KeyPrefix: cfg.Session.KeyPrefix}
	auth := session.NewAuthenticator(store, broker, codec, opts)
	rehydrator := session.NewRehydrator(store, broker, codec, opts)
	gw := gateway.NewService(rehydrator, cfg.Broker.Timeout)

	appLogger.Info(ctx, "Worker initialized", map[string]interface{}{
		"session_ttl":    opts.TTL.String(),
		"records_sealed": codec.Sealed(),
	})

	return apiecho.NewWorkerAPI(auth, gw, cfg.ServiceName), store, nil
}
