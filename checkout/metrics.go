package checkout

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors a Machine reports to. A nil *Metrics
// records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
}

// NewMetrics creates the checkout collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Checkout session operations by outcome.",
		}, []string{"operation", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_payment_verifications_total",
			Help: "Ledger payment verifications by result.",
		}, []string{"result"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkout_ledger_latency_ms",
			Help:    "Latency of ledger gateway calls in milliseconds.",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"call"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.verifications, m.ledgerLatency)
	}
	return m
}

func (m *Metrics) transition(op Operation, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(op), outcome(err)).Inc()
}

func (m *Metrics) verification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ledgerCall(call string, started time.Time) {
	if m == nil {
		return
	}
	m.ledgerLatency.WithLabelValues(call).Observe(float64(time.Since(started).Milliseconds()))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errAlreadyCompleted):
		return "replay"
	case IsValidation(err):
		return "invalid"
	case IsTransient(err):
		return "retry"
	case IsInvariantViolation(err):
		return "invariant"
	}
	return "error"
}
