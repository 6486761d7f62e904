package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/stylesync/internal/client/channel"
)

const metricsNamespace = "stylesync"

// Metrics collects request, queue and channel metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	retries      prometheus.Counter
	refreshes    prometheus.Counter
	duration     *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	reconnects   prometheus.Counter
	channelState prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricsNamespace, "", "requests_total"),
			Help: "Requests completed, by method and outcome.",
		}, []string{"method", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricsNamespace, "", "request_retries_total"),
			Help: "Request attempts retried after a transient failure.",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricsNamespace, "", "token_refreshes_total"),
			Help: "Successful auth token refreshes.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prometheus.BuildFQName(metricsNamespace, "", "request_duration_seconds"),
			Help:    "Request latency including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(metricsNamespace, "", "queue_depth"),
			Help: "Mutating calls waiting in the serial queue.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricsNamespace, "", "channel_reconnects_total"),
			Help: "Persistent channel reconnect attempts.",
		}),
		channelState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(metricsNamespace, "", "channel_state"),
			Help: "Persistent channel state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting).",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.retries,
			m.refreshes,
			m.duration,
			m.queueDepth,
			m.reconnects,
			m.channelState,
		)
	}
	return m
}

func (m *Metrics) requestDone(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) tokenRefreshed() {
	if m == nil {
		return
	}
	m.refreshes.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) channelTransition(_, to channel.State) {
	if m == nil {
		return
	}
	m.channelState.Set(float64(to))
	if to == channel.StateReconnecting {
		m.reconnects.Inc()
	}
}
