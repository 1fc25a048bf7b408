package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCustomMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitCustomMetrics(reg)
	// A second registration is logged, not fatal.
	InitCustomMetrics(reg)

	LoginsTotal.WithLabelValues(OutcomeSuccess).Inc()
	BrokerCallsTotal.WithLabelValues("holdings", OutcomeFailure).Inc()
	BrokerCallDuration.WithLabelValues("holdings").Observe(0.2)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["neoproxy_logins_total"])
	assert.True(t, names["neoproxy_broker_calls_total"])
	assert.True(t, names["neoproxy_broker_call_duration_seconds"])

	assert.GreaterOrEqual(t, testutil.ToFloat64(BrokerCallsTotal.WithLabelValues("holdings", OutcomeFailure)), float64(1))
}

func TestInitCustomMetrics_NilRegistry(t *testing.T) {
	assert.NotPanics(t, func() { InitCustomMetrics(nil) })
}
