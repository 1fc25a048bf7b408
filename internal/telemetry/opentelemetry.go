// Package telemetry bridges OpenTelemetry metrics into the Prometheus registry
// served on /metrics, so the HTTP server and client instrumentation of both
// hops show up next to the custom counters.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider installs a global meter provider that exports through reg.
// Series carry the hop's role and service name, so a worker and a front hop
// scraped by the same Prometheus stay apart.
func InitMeterProvider(reg prometheus.Registerer, serviceName, role string) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
		prometheusexporter.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		attribute.String("neoproxy.role", role),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics resource: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	log.Info().Str("service", serviceName).Str("role", role).Msg("OpenTelemetry metrics exported on /metrics")
	return mp, nil
}

// Shutdown flushes and stops the providers. Either may be nil.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider, mp *metric.MeterProvider) {
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down OpenTelemetry TracerProvider")
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down OpenTelemetry MeterProvider")
		}
	}
}
