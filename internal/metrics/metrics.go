package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Кошелёк
	LedgerEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_entries_total",
			Help: "Total wallet ledger entries posted",
		},
		[]string{"type"}, // CREDIT|DEBIT
	)
	LedgerRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_rejected_total",
			Help: "Total rejected wallet operations",
		},
		[]string{"reason"},
	)

	// Escrow и задачи
	EscrowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Total escrow state transitions",
		},
		[]string{"status"},
	)
	TaskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_transitions_total",
			Help: "Total task state transitions",
		},
		[]string{"status"},
	)

	// Платежи
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Wallet funding attempts by outcome",
		},
		[]string{"outcome"}, // initiated|successful|duplicate|rejected
	)

	registerOnce sync.Once
)

// Init регистрирует метрики в реестре по умолчанию. Повторный вызов безопасен.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpLatency,
			LedgerEntriesTotal,
			LedgerRejectedTotal,
			EscrowTransitionsTotal,
			TaskTransitionsTotal,
			PaymentsTotal,
		)
	})
}

// Handler отдаёт метрики для /metrics.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// HTTPMetrics измеряет время обработки запроса по шаблону маршрута.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpLatency.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
