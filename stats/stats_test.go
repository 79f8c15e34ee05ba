package stats_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/nodelink/notify"
	"github.com/sabouaram/nodelink/stats"
)

func TestObserveNotificationIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := stats.NewRegistry(reg)

	r.ObserveNotification(notify.Connected{})
	r.ObserveNotification(notify.Connected{})

	families, err := reg.Gather()
	require.NoError(t, err)

	found := findMetricFamily(families, "nodelink_notify_total")
	require.NotNil(t, found)
	require.Len(t, found.Metric, 1)
	require.Equal(t, float64(2), found.Metric[0].Counter.GetValue())
}

func TestRequestLifecycleGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := stats.NewRegistry(reg)

	r.RequestStarted()
	r.RequestStarted()
	r.RequestFinished()

	families, err := reg.Gather()
	require.NoError(t, err)

	found := findMetricFamily(families, "nodelink_request_active")
	require.NotNil(t, found)
	require.Equal(t, float64(1), found.Metric[0].Gauge.GetValue())
}

func TestObserveRequestLatencyDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := stats.NewRegistry(reg)
	r.ObserveRequestLatency(250 * time.Millisecond)
}

func TestSetConnectionStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := stats.NewRegistry(reg)

	r.SetConnectionStatus("10.0.0.1:7000", true)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := findMetricFamily(families, "nodelink_connection_status")
	require.NotNil(t, found)
	require.Equal(t, float64(1), found.Metric[0].Gauge.GetValue())
}

func findMetricFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}
