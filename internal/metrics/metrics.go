package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess  = "success"
	ResultRejected = "rejected" // 业务校验失败，如余额不足
	ResultError    = "error"    // 锁超时、存储失败等可重试错误
)

var (
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger mutations including lock wait.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "outbox_published_total",
			Help:      "Outbox messages handled by the sender, by result.",
		},
		[]string{"result"},
	)

	RolloverAccountsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "rollover_accounts_total",
			Help:      "Accounts whose daily counters were reset by the rollover sweep.",
		},
	)
)

// ObserveOperation 记录一次记账操作的结果和耗时
func ObserveOperation(op, result string, start time.Time) {
	LedgerOperationsTotal.WithLabelValues(op, result).Inc()
	LedgerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
