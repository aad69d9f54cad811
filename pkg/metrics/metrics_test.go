package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionMetrics(t *testing.T) {
	ConnectionsTotal.Reset()
	ConnectionsCurrent.Reset()
	AuthenticatedConnectionsCurrent.Reset()
	ConnectionsClosed.Reset()

	ConnectionsTotal.WithLabelValues("kiri").Inc()
	ConnectionsTotal.WithLabelValues("kiri").Inc()
	ConnectionsCurrent.WithLabelValues("kiri").Inc()
	AuthenticatedConnectionsCurrent.WithLabelValues("kiri").Inc()
	AuthenticatedConnectionsCurrent.WithLabelValues("kiri").Dec()
	ConnectionsClosed.WithLabelValues("kiri", "quit").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(ConnectionsTotal.WithLabelValues("kiri")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionsCurrent.WithLabelValues("kiri")))
	assert.Equal(t, 0.0, testutil.ToFloat64(AuthenticatedConnectionsCurrent.WithLabelValues("kiri")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionsClosed.WithLabelValues("kiri", "quit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionsClosed.WithLabelValues("kiri", "peer_closed")))
}

func TestCommandMetricsLabels(t *testing.T) {
	CommandsTotal.Reset()

	CommandsTotal.WithLabelValues("a", "lcm", "ok").Inc()
	CommandsTotal.WithLabelValues("a", "lcm", "error").Inc()
	CommandsTotal.WithLabelValues("b", "caesar", "ok").Inc()

	assert.Equal(t, 3, testutil.CollectAndCount(CommandsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(CommandsTotal.WithLabelValues("a", "lcm", "error")))
}

func TestCommandDurationHistogram(t *testing.T) {
	CommandDuration.Reset()

	obs := CommandDuration.WithLabelValues("kiri", "parentheses")
	obs.Observe(0.00002)
	obs.Observe(0.5)

	m := &dto.Metric{}
	require.NoError(t, obs.(prometheus.Metric).Write(m))
	require.NotNil(t, m.Histogram)
	assert.Equal(t, uint64(2), m.Histogram.GetSampleCount())
	assert.InDelta(t, 0.50002, m.Histogram.GetSampleSum(), 1e-9)
}

func TestCredentialsGaugeRegistered(t *testing.T) {
	CredentialsUsers.Set(3)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "kiri_credentials_users" {
			found = f
		}
	}
	require.NotNil(t, found, "gauge is registered with the default registry")
	require.Len(t, found.GetMetric(), 1)
	assert.Equal(t, 3.0, found.GetMetric()[0].GetGauge().GetValue())
}
