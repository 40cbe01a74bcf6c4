package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "txengine_retry_attempts_total", Help: "Failed attempts observed by the retry orchestrator"},
		[]string{"network", "strategy", "errorType"},
	)
	promFeeEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "txengine_fee_escalations_total", Help: "Fee escalations applied between retry attempts"},
		[]string{"network", "strategy"},
	)
	promStatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "txengine_status_updates_total", Help: "Status tracker updates by resulting status"},
		[]string{"network", "status"},
	)
	promStuckTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "txengine_stuck_transactions", Help: "Transactions currently flagged stuck"},
	)
	promRecoveryActions = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "txengine_recovery_actions_total", Help: "Recovery actions by kind and outcome"},
		[]string{"kind", "outcome"},
	)
)

func RecordRetryAttempt(network, strategy, errorType string) {
	promRetryAttempts.WithLabelValues(network, strategy, errorType).Inc()
}

func RecordFeeEscalation(network, strategy string) {
	promFeeEscalations.WithLabelValues(network, strategy).Inc()
}

func RecordStatusUpdate(network, status string) {
	promStatusUpdates.WithLabelValues(network, status).Inc()
}

func IncStuckTransactions() { promStuckTransactions.Inc() }

func DecStuckTransactions() { promStuckTransactions.Dec() }

func RecordRecoveryAction(kind, outcome string) {
	promRecoveryActions.WithLabelValues(kind, outcome).Inc()
}
