package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sagarc03/sigv4gate"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the authentication collectors. A nil *Metrics records nothing.
type Metrics struct {
	AuthTotal    *prometheus.CounterVec
	AuthDuration *prometheus.HistogramVec
	BodyBytes    prometheus.Histogram
	InFlight     prometheus.Gauge
}

// NewMetrics registers the authentication collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		AuthTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigv4gate",
			Name:      "auth_requests_total",
			Help:      "Requests seen by the authenticator, by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		AuthDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sigv4gate",
			Name:      "auth_duration_seconds",
			Help:      "Time spent draining and verifying a request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		BodyBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sigv4gate",
			Name:      "body_bytes",
			Help:      "Size of drained request bodies.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigv4gate",
			Name:      "auth_in_flight",
			Help:      "Requests currently being authenticated.",
		}),
	}

	m.AuthTotal.WithLabelValues(outcomeSuccess, "")
	for _, r := range sigv4gate.Reasons {
		m.AuthTotal.WithLabelValues(outcomeFailure, string(r))
	}

	return m
}

func (m *Metrics) begin() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

func (m *Metrics) success(start time.Time, bodyLen int) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(outcomeSuccess, "").Inc()
	m.AuthDuration.WithLabelValues(outcomeSuccess).Observe(time.Since(start).Seconds())
	m.BodyBytes.Observe(float64(bodyLen))
}

func (m *Metrics) failure(start time.Time, reason sigv4gate.Reason) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(outcomeFailure, string(reason)).Inc()
	m.AuthDuration.WithLabelValues(outcomeFailure).Observe(time.Since(start).Seconds())
}
