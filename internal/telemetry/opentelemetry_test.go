package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitMeterProvider_ExportsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	mp, err := InitMeterProvider(reg, "neoproxy-test", "worker")
	require.NoError(t, err)
	defer Shutdown(context.Background(), nil, mp)

	counter, err := otel.Meter("telemetry-test").Int64Counter("neoproxy.test.calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "neoproxy_test_calls_total" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, float64(3), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "otel counter should be exported through the registry")
}

func TestShutdown_NilProviders(t *testing.T) {
	assert.NotPanics(t, func() {
		Shutdown(context.Background(), nil, nil)
	})
}

func TestInitMeterProvider_TargetInfoCarriesHop(t *testing.T) {
	reg := prometheus.NewRegistry()

	mp, err := InitMeterProvider(reg, "neo-worker", "worker")
	require.NoError(t, err)
	defer Shutdown(context.Background(), nil, mp)

	counter, err := otel.Meter("telemetry-test").Int64Counter("neoproxy.hop.calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	labels := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "target_info" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
	}
	assert.Equal(t, "neo-worker", labels["service_name"])
	assert.Equal(t, "worker", labels["neoproxy_role"])
}
