// AngelaMos | 2026
// metrics.go

package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	authOperations *prometheus.CounterVec
	mailDispatch   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		authOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Authentication flow invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		mailDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_mail_dispatch_total",
			Help: "Account email dispatch attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		m.authOperations,
		m.mailDispatch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) AuthOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.authOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) MailDispatch(kind, outcome string) {
	if m == nil {
		return
	}
	m.mailDispatch.WithLabelValues(kind, outcome).Inc()
}

// RegisterDB exports connection pool statistics for db.
func (m *Metrics) RegisterDB(db *sql.DB) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, "ordering_auth"))
}

func (m *Metrics) AuthOperations() *prometheus.CounterVec {
	return m.authOperations
}

func (m *Metrics) MailDispatches() *prometheus.CounterVec {
	return m.mailDispatch
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
