package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	AllocatedLots    prometheus.Histogram
	TxRetries        *prometheus.CounterVec
	PublishFailures  *prometheus.CounterVec
	RevaluedLots     prometheus.Counter
	ShipmentsApplied *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commands_total",
				Help: "Total ledger commands by outcome.",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_command_duration_seconds",
				Help:    "Ledger command duration in seconds, including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		AllocatedLots: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_allocation_lots",
				Help:    "Number of lots drawn from per sell-side allocation.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		TxRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_tx_retries_total",
				Help: "Total unit of work retries.",
			},
			[]string{"reason"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_event_publish_failures_total",
				Help: "Total post-commit event publish failures.",
			},
			[]string{"topic"},
		),
		RevaluedLots: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_revalued_lots_total",
				Help: "Total lots revalued by commodity price updates.",
			},
		),
		ShipmentsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_shipments_applied_total",
				Help: "Total shipment deliveries handled.",
			},
			[]string{"direction", "status"},
		),
	}

	registry.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.AllocatedLots,
		m.TxRetries,
		m.PublishFailures,
		m.RevaluedLots,
		m.ShipmentsApplied,
	)
	return m
}

func (m *Metrics) ObserveCommand(command string, kind ErrorKind, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *Metrics) ObserveAllocation(lots int) {
	if m == nil {
		return
	}
	m.AllocatedLots.Observe(float64(lots))
}

// IncTxRetry satisfies storage.TxMetrics.
func (m *Metrics) IncTxRetry(reason string) {
	if m == nil {
		return
	}
	m.TxRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncPublishFailure(topic string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) AddRevaluedLots(n int64) {
	if m == nil {
		return
	}
	m.RevaluedLots.Add(float64(n))
}

func (m *Metrics) IncShipment(direction, status string) {
	if m == nil {
		return
	}
	m.ShipmentsApplied.WithLabelValues(direction, status).Inc()
}
