// Package stats wires the runtime's observable counters and latencies into
// prometheus/client_golang, the metrics stack used throughout the teacher
// repo's prometheus package.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sabouaram/nodelink/notify"
)

const namespace = "nodelink"

// Registry bundles every metric this runtime exposes and registers them
// against a prometheus.Registerer supplied by the embedding application.
type Registry struct {
	notifications  *prometheus.CounterVec
	requestLatency prometheus.Histogram
	activeRequests prometheus.Gauge
	connections    *prometheus.GaugeVec
}

// NewRegistry creates a Registry and registers its collectors with reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Registry{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "total",
			Help:      "Count of notifications delivered to request handlers, labeled by kind.",
		}, []string{"kind"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "latency_seconds",
			Help:      "Time from request start until its terminal notification.",
			Buckets:   prometheus.DefBuckets,
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "active",
			Help:      "Number of requests currently tracked by a RequestSet.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "status",
			Help:      "Connection status by remote address: 1 if connected, 0 otherwise.",
		}, []string{"addr"}),
	}

	reg.MustRegister(r.notifications, r.requestLatency, r.activeRequests, r.connections)
	return r
}

// ObserveNotification increments the per-kind notification counter.
func (r *Registry) ObserveNotification(n notify.Notifier) {
	if r == nil || n == nil {
		return
	}
	r.notifications.WithLabelValues(n.Kind()).Inc()
}

// ObserveRequestLatency records the elapsed time for a finished request.
func (r *Registry) ObserveRequestLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.requestLatency.Observe(d.Seconds())
}

// RequestStarted/RequestFinished keep the active-request gauge in sync.
func (r *Registry) RequestStarted() {
	if r != nil {
		r.activeRequests.Inc()
	}
}

func (r *Registry) RequestFinished() {
	if r != nil {
		r.activeRequests.Dec()
	}
}

// SetConnectionStatus records whether addr is currently connected.
func (r *Registry) SetConnectionStatus(addr string, connected bool) {
	if r == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1.0
	}
	r.connections.WithLabelValues(addr).Set(v)
}
