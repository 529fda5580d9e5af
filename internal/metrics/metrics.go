// Package metrics exposes hub activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"hubadapters/internal/entity"
	"hubadapters/internal/flow"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hub"

// Metrics holds the hub collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	polls      *prometheus.CounterVec
	entityOn   *prometheus.GaugeVec
	flowSteps  *prometheus.CounterVec
	lastPolled *prometheus.GaugeVec
}

// New creates the collectors. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_polls_total",
			Help:      "Entity updates by outcome.",
		}, []string{"entity_id", "result"}),
		entityOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entity_on",
			Help:      "1 when a binary entity is on, 0 when off, -1 when unavailable.",
		}, []string{"entity_id"}),
		lastPolled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entity_last_poll_timestamp_seconds",
			Help:      "Unix time of the last entity update attempt.",
		}, []string{"entity_id"}),
		flowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_steps_total",
			Help:      "Config flow steps by domain, step and result.",
		}, []string{"domain", "step_id", "result", "reason"}),
	}

	m.registry.MustRegister(m.polls, m.entityOn, m.lastPolled, m.flowSteps)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return m
}

// ObservePoll records one entity update
func (m *Metrics) ObservePoll(snap entity.Snapshot, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(snap.EntityID, result).Inc()

	switch snap.State {
	case entity.StateOn:
		m.entityOn.WithLabelValues(snap.EntityID).Set(1)
	case entity.StateOff:
		m.entityOn.WithLabelValues(snap.EntityID).Set(0)
	default:
		m.entityOn.WithLabelValues(snap.EntityID).Set(-1)
	}

	if !snap.LastUpdated.IsZero() {
		m.lastPolled.WithLabelValues(snap.EntityID).Set(float64(snap.LastUpdated.Unix()))
	}
}

// ForgetEntity drops the series of a removed entity
func (m *Metrics) ForgetEntity(entityID string) {
	m.polls.DeletePartialMatch(prometheus.Labels{"entity_id": entityID})
	m.entityOn.DeleteLabelValues(entityID)
	m.lastPolled.DeleteLabelValues(entityID)
}

// ObserveStep records one config flow step
func (m *Metrics) ObserveStep(domain, stepID string, result flow.Result) {
	m.flowSteps.WithLabelValues(domain, stepID, string(result.Type), result.Reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
