// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Optimization metrics
	TrialsTotal   *prometheus.CounterVec
	TrialDuration *prometheus.HistogramVec
	BestObjective *prometheus.GaugeVec
	StudiesTotal  *prometheus.CounterVec
	BarsSimulated prometheus.Counter
	OrderEvents   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Server metrics
	HTTPRequests    *prometheus.CounterVec
	ProgressClients prometheus.Gauge

	// Health metrics
	LastSuccessfulStudy prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "strategy_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TrialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "trials_total",
			Help:      "Total number of trials by strategy and status",
		}, []string{"strategy", "status"}),
		TrialDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "trial_duration_seconds",
			Help:      "Backtest run duration per trial in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"strategy"}),
		BestObjective: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "best_objective",
			Help:      "Best objective value observed so far per study",
		}, []string{"study"}),
		StudiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "studies_total",
			Help:      "Total number of optimization studies by status",
		}, []string{"status"}),
		BarsSimulated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "bars_simulated_total",
			Help:      "Total number of bars fed through simulations",
		}),
		OrderEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "order_events_total",
			Help:      "Total number of order lifecycle events by kind",
		}, []string{"kind"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
		ProgressClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "progress_clients",
			Help:      "Number of connected progress websocket clients",
		}),

		LastSuccessfulStudy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_study_timestamp",
			Help:      "Unix timestamp of last completed optimization study",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTrial records one finished trial.
func (m *Metrics) RecordTrial(strategy, status string, seconds float64, bars int) {
	if m == nil {
		return
	}
	m.TrialsTotal.WithLabelValues(strategy, status).Inc()
	m.TrialDuration.WithLabelValues(strategy).Observe(seconds)
	m.BarsSimulated.Add(float64(bars))
}

// RecordOrderEvent counts one lifecycle event.
func (m *Metrics) RecordOrderEvent(kind string) {
	if m == nil {
		return
	}
	m.OrderEvents.WithLabelValues(kind).Inc()
}

// SetBestObjective updates the best objective gauge of a study.
func (m *Metrics) SetBestObjective(study string, v float64) {
	if m == nil {
		return
	}
	m.BestObjective.WithLabelValues(study).Set(v)
}

// RecordStudy records a finished study.
func (m *Metrics) RecordStudy(status string, finishedUnix int64) {
	if m == nil {
		return
	}
	m.StudiesTotal.WithLabelValues(status).Inc()
	if status == "completed" {
		m.LastSuccessfulStudy.Set(float64(finishedUnix))
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest counts one API request.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}

// SetProgressClients updates the connected websocket client gauge.
func (m *Metrics) SetProgressClients(n int) {
	if m == nil {
		return
	}
	m.ProgressClients.Set(float64(n))
}
