package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks calls against the payment gateway.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway call metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of payment gateway requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_request_outcomes",
		Help: "Payment gateway request outcomes by operation.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(duration, outcomes)
	return &GatewayMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// Observe records one gateway call.
func (g *GatewayMetrics) Observe(operation string, duration time.Duration, err error) {
	if g == nil || g.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	g.duration.WithLabelValues(op).Observe(duration.Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	g.outcomes.WithLabelValues(op, outcome).Inc()
}
