package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neoproxy_logins_total",
		Help: "Broker logins by outcome (success, auth_failed, incomplete, store_unavailable).",
	}, []string{"outcome"})

	RehydrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neoproxy_rehydrations_total",
		Help: "Broker client rehydrations from the credential store by outcome.",
	}, []string{"outcome"})

	TTLRenewalFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neoproxy_ttl_renewal_failures_total",
		Help: "Session TTL renewals that failed after a successful read.",
	})

	BrokerCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neoproxy_broker_calls_total",
		Help: "Trading operations forwarded to the broker by operation and outcome.",
	}, []string{"op", "outcome"})

	BrokerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neoproxy_broker_call_duration_seconds",
		Help:    "Latency of trading operations forwarded to the broker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neoproxy_upstream_requests_total",
		Help: "Requests relayed to the worker hop by route and outcome.",
	}, []string{"route", "outcome"})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	for _, c := range []prometheus.Collector{
		LoginsTotal,
		RehydrationsTotal,
		TTLRenewalFailuresTotal,
		BrokerCallsTotal,
		BrokerCallDuration,
		UpstreamRequestsTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
