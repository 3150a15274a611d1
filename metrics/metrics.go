// Package metrics bundles the Prometheus instruments for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	InstancesGenerated   prometheus.Counter
	InstancesDeleted     prometheus.Counter
	ReconciliationRuns   prometheus.Counter
	ReconciliationErrors prometheus.Counter
	SubmissionsOnTime    prometheus.Counter
	SubmissionsLate      prometheus.Counter
	AlertsSent           *prometheus.CounterVec
	SweepRuns            prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		InstancesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_instances_generated_total",
			Help: "Total period-instances created by generation or reconciliation",
		}),
		InstancesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_instances_deleted_total",
			Help: "Total pending instances removed by reconciliation",
		}),
		ReconciliationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_reconciliation_runs_total",
			Help: "Total reconciliations executed",
		}),
		ReconciliationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_reconciliation_errors_total",
			Help: "Total reconciliations aborted with an error",
		}),
		SubmissionsOnTime: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_submissions_on_time_total",
			Help: "Total submissions recorded on or before the due date",
		}),
		SubmissionsLate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_submissions_late_total",
			Help: "Total submissions recorded after the due date",
		}),
		AlertsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_alerts_sent_total",
			Help: "Total alerts raised by the sweep, by tier",
		}, []string{"tier"}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "compliance_sweep_runs_total",
			Help: "Total alert sweep executions",
		}),
	}
}

// NewForTesting creates metrics on a private registry so parallel tests do
// not collide on the default one.
func NewForTesting() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		InstancesGenerated:   factory.NewCounter(prometheus.CounterOpts{Name: "compliance_instances_generated_total"}),
		InstancesDeleted:     factory.NewCounter(prometheus.CounterOpts{Name: "compliance_instances_deleted_total"}),
		ReconciliationRuns:   factory.NewCounter(prometheus.CounterOpts{Name: "compliance_reconciliation_runs_total"}),
		ReconciliationErrors: factory.NewCounter(prometheus.CounterOpts{Name: "compliance_reconciliation_errors_total"}),
		SubmissionsOnTime:    factory.NewCounter(prometheus.CounterOpts{Name: "compliance_submissions_on_time_total"}),
		SubmissionsLate:      factory.NewCounter(prometheus.CounterOpts{Name: "compliance_submissions_late_total"}),
		AlertsSent:           factory.NewCounterVec(prometheus.CounterOpts{Name: "compliance_alerts_sent_total"}, []string{"tier"}),
		SweepRuns:            factory.NewCounter(prometheus.CounterOpts{Name: "compliance_sweep_runs_total"}),
	}
}
