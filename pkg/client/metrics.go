package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	callPublic        = "public"
	callAuthenticated = "authenticated"

	outcomeSuccess   = "success"
	outcomeTransport = "transport_error"
	outcomeExchange  = "exchange_error"
	outcomeExhausted = "retries_exhausted"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	nonceRetries    prometheus.Counter
	noncesIssued    prometheus.Counter
}

// NewMetrics registers the client collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bfx_client_requests_total",
			Help: "Total logical API calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bfx_client_request_duration_seconds",
			Help:    "Duration of logical API calls including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		nonceRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "bfx_client_nonce_retries_total",
			Help: "Total attempts retried after a nonce rejection.",
		}),
		noncesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "bfx_client_nonces_issued_total",
			Help: "Total nonces drawn for signed requests.",
		}),
	}
}

func (m *Metrics) observe(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind, outcome).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) nonceRetry() {
	if m == nil {
		return
	}
	m.nonceRetries.Inc()
}

func (m *Metrics) nonceIssued() {
	if m == nil {
		return
	}
	m.noncesIssued.Inc()
}
