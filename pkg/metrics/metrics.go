package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Every recorder is safe to call on a nil *Metrics.
type Metrics struct {
	refreshTotal        *prometheus.CounterVec
	chainReadDuration   *prometheus.HistogramVec
	writesTotal         *prometheus.CounterVec
	operationSubmitting prometheus.Gauge
	ledgerSize          prometheus.Gauge
	accountChanges      *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tipjar_refresh_total",
				Help: "Refresh results by outcome (applied, discarded, failed)",
			},
			[]string{"outcome"},
		),
		chainReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tipjar_chain_read_duration_seconds",
				Help:    "Duration of contract reads in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "status"},
		),
		writesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tipjar_writes_total",
				Help: "State-changing calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		operationSubmitting: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tipjar_operation_submitting",
				Help: "1 while a write is awaiting confirmation",
			},
		),
		ledgerSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tipjar_ledger_size",
				Help: "Number of tips in the last applied snapshot",
			},
		),
		accountChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tipjar_account_changes_total",
				Help: "Wallet account changes by kind (set, cleared)",
			},
			[]string{"kind"},
		),
	}
}

// RecordRefresh records how a refresh result was handled.
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

// RecordChainRead records a contract read with duration.
func (m *Metrics) RecordChainRead(method string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.chainReadDuration.WithLabelValues(method, status).Observe(duration)
}

// RecordWrite records a settled write.
func (m *Metrics) RecordWrite(op, outcome string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) SetSubmitting(submitting bool) {
	if m == nil {
		return
	}
	if submitting {
		m.operationSubmitting.Set(1)
	} else {
		m.operationSubmitting.Set(0)
	}
}

func (m *Metrics) SetLedgerSize(n int) {
	if m == nil {
		return
	}
	m.ledgerSize.Set(float64(n))
}

func (m *Metrics) RecordAccountChange(kind string) {
	if m == nil {
		return
	}
	m.accountChanges.WithLabelValues(kind).Inc()
}
