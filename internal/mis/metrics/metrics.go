// Package metrics exposes reconciliation metrics to Prometheus.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const metricPrefix = "mis_"

// Metrics bundles reconciliation metrics. A nil *Metrics is a no-op.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	StatesTotal      *prometheus.CounterVec
	BatchesTotal     *prometheus.CounterVec
	RowsTotal        *prometheus.CounterVec
	ZeroOverwrites   prometheus.Counter
	ExportsTotal     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	NotificationsErr prometheus.Counter
}

// New constructs metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total reconciliation runs by status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "run_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		StatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "state_transitions_total",
				Help: "Run state machine transitions by state",
			},
			[]string{"state"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batches_total",
				Help: "Fetched batches by outcome",
			},
			[]string{"outcome"},
		),
		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_total",
				Help: "Rows handled by pipeline stage",
			},
			[]string{"stage"},
		),
		ZeroOverwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "zero_overwrites_total",
			Help: "Stored zero values overwritten by nonzero data",
		}),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_exports_total",
				Help: "Run report exports by format and result",
			},
			[]string{"format", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "API requests by method and status code",
			},
			[]string{"method", "code"},
		),
		NotificationsErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "notification_errors_total",
			Help: "Failed alert notifications",
		}),
	}
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StatesTotal,
		m.BatchesTotal,
		m.RowsTotal,
		m.ZeroOverwrites,
		m.ExportsTotal,
		m.HTTPRequests,
		m.NotificationsErr,
	)
	return m
}

// RegisterRunGauges exposes run history counts read from the database.
func RegisterRunGauges(reg prometheus.Registerer, db *sql.DB, logger logrus.FieldLogger) {
	if reg == nil || db == nil {
		return
	}
	for _, status := range []string{"running", "failed"} {
		query := "SELECT COUNT(*) FROM mis_reconcile_runs WHERE status = '" + status + "'"
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "runs_in_status",
				Help:        "Persisted runs by status",
				ConstLabels: prometheus.Labels{"status": status},
			},
			func() float64 { return queryCount(db, logger, query) },
		))
	}
}

func queryCount(db *sql.DB, logger logrus.FieldLogger, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.WithError(err).WithField("event", "metrics_query_failed").Debug("run gauge query failed")
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// IncState counts a state transition.
func (m *Metrics) IncState(state string) {
	if m == nil {
		return
	}
	m.StatesTotal.WithLabelValues(state).Inc()
}

// IncBatch counts a fetched batch by outcome.
func (m *Metrics) IncBatch(outcome string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
}

// AddRows adds n rows to a stage counter.
func (m *Metrics) AddRows(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsTotal.WithLabelValues(stage).Add(float64(n))
}

// AddZeroOverwrites adds n overwritten zeros.
func (m *Metrics) AddZeroOverwrites(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ZeroOverwrites.Add(float64(n))
}

// IncExport counts a report export.
func (m *Metrics) IncExport(format, result string) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, result).Inc()
}

// IncHTTP counts an API request.
func (m *Metrics) IncHTTP(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, itoa(code)).Inc()
}

// IncNotificationError counts a failed notification.
func (m *Metrics) IncNotificationError() {
	if m == nil {
		return
	}
	m.NotificationsErr.Inc()
}

func itoa(code int) string {
	if code <= 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for code > 0 && i > 0 {
		i--
		buf[i] = byte('0' + code%10)
		code /= 10
	}
	return string(buf[i:])
}
