package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors of the wallet core. A nil *Metrics is
// valid and records nothing, which keeps unit tests free of registry plumbing.
type Metrics struct {
	ledgerMutations      *prometheus.CounterVec
	statusTransitions    *prometheus.CounterVec
	reconciliations      *prometheus.CounterVec
	otpVerifications     *prometheus.CounterVec
	gatewayCalls         *prometheus.CounterVec
	gatewayLatency       *prometheus.HistogramVec
	notificationFailures prometheus.Counter
}

// New builds the collectors under namespace and registers them with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgerMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_mutations_total",
				Help:      "Wallet balance mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
		statusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_status_transitions_total",
				Help:      "Conditional transaction status transitions by target status and whether a row changed",
			},
			[]string{"to", "applied"},
		),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_reconciliations_total",
				Help:      "Payment intent reconciliation attempts by signal source and outcome",
			},
			[]string{"source", "outcome"},
		),
		otpVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_verifications_total",
				Help:      "OTP verification results",
			},
			[]string{"purpose", "result"},
		),
		gatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Payment gateway calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		gatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Payment gateway call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		notificationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Best-effort notifications that failed to deliver",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ledgerMutations,
			m.statusTransitions,
			m.reconciliations,
			m.otpVerifications,
			m.gatewayCalls,
			m.gatewayLatency,
			m.notificationFailures,
		)
	}
	return m
}

// LedgerMutation counts a credit or debit attempt.
func (m *Metrics) LedgerMutation(operation, result string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(operation, result).Inc()
}

// StatusTransition counts a conditional status update and whether it applied.
func (m *Metrics) StatusTransition(to string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.statusTransitions.WithLabelValues(to, label).Inc()
}

// Reconciliation counts a reconciliation outcome for a signal source (webhook, poll).
func (m *Metrics) Reconciliation(source, outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(source, outcome).Inc()
}

// OTPVerification counts a verification result code.
func (m *Metrics) OTPVerification(purpose, result string) {
	if m == nil {
		return
	}
	m.otpVerifications.WithLabelValues(purpose, result).Inc()
}

// GatewayCall records a gateway call outcome and latency.
func (m *Metrics) GatewayCall(operation, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(operation, result).Inc()
	m.gatewayLatency.WithLabelValues(operation).Observe(took.Seconds())
}

// NotificationFailed counts a dropped best-effort notification.
func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}
