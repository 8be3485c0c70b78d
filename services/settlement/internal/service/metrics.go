package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CheckoutsSubmitted  *prometheus.CounterVec
	FeeComputations     *prometheus.CounterVec
	TokenDeltasRecorded prometheus.Counter
	ReportDuration      prometheus.Histogram
	ReportRows          prometheus.Histogram
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CheckoutsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_checkouts_submitted_total",
				Help: "Total checkout submissions by outcome.",
			},
			[]string{"outcome"},
		),
		FeeComputations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_fee_computations_total",
				Help: "Total fee computations by fee type.",
			},
			[]string{"fee_type"},
		),
		TokenDeltasRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_token_deltas_recorded_total",
				Help: "Total token deltas written by settled checkouts.",
			},
		),
		ReportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_report_duration_seconds",
				Help:    "Settlement report build duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReportRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_report_rows",
				Help:    "Number of checkout rows per report.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}

	registry.MustRegister(
		m.CheckoutsSubmitted,
		m.FeeComputations,
		m.TokenDeltasRecorded,
		m.ReportDuration,
		m.ReportRows,
	)
	return m
}

func (m *Metrics) IncCheckout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutsSubmitted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncFeeComputation(feeType string) {
	if m == nil {
		return
	}
	m.FeeComputations.WithLabelValues(feeType).Inc()
}

func (m *Metrics) AddTokenDeltas(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokenDeltasRecorded.Add(float64(n))
}

func (m *Metrics) ObserveReport(duration time.Duration, rows int) {
	if m == nil {
		return
	}
	m.ReportDuration.Observe(duration.Seconds())
	m.ReportRows.Observe(float64(rows))
}
