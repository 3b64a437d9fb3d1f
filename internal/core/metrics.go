package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transactions *prometheus.CounterVec
	queries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	pending      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelkit_transactions_total",
			Help: "Transactions executed by the model service, by outcome",
		}, []string{"outcome"}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelkit_queries_total",
			Help: "Queries executed by the model service, by outcome",
		}, []string{"outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modelkit_operation_duration_seconds",
			Help:    "Time spent running transaction and query bodies including commit",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "modelkit_pending_operations",
			Help: "Calls queued for the writer goroutine",
		}),
	}
}

func (m *metrics) record(kind callKind, label string, elapsed time.Duration) {
	counter := m.queries
	if kind == kindTransaction {
		counter = m.transactions
	}
	counter.WithLabelValues(label).Inc()
	if label != outcomeCanceled {
		m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}
