// Package metrics holds the Prometheus instrumentation shared by the
// workflow services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters the orchestrator and dispatch worker update.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	Dispatches     *prometheus.CounterVec
	Escalations    *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	PublishRetries prometheus.Counter
}

// New registers the counters on the given registerer and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "transitions_total",
			Help:      "Order lifecycle transitions by target status.",
		}, []string{"to"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "dispatches_total",
			Help:      "Dispatch decisions by destination channel.",
		}, []string{"channel"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "escalations_total",
			Help:      "SLA escalations by level.",
		}, []string{"level"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "compensations_total",
			Help:      "Compensating actions by kind.",
		}, []string{"kind"}),
		PublishRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "publish_retries_total",
			Help:      "Transport publishes that needed at least one retry.",
		}),
	}
	reg.MustRegister(m.Transitions, m.Dispatches, m.Escalations, m.Compensations, m.PublishRetries)
	return m
}
