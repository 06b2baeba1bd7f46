package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records execution-order lifecycle metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	ordersCreated         *prometheus.CounterVec
	transitions           *prometheus.CounterVec
	dependenciesSatisfied prometheus.Counter
	ordersReleased        prometheus.Counter
	assignmentsRejected   prometheus.Counter
	cascadeFanout         prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		ordersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_orders_created_total",
				Help: "Execution orders created, by type and initial status",
			},
			[]string{"order_type", "status"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_order_transitions_total",
				Help: "Execution order status transitions",
			},
			[]string{"from", "to"},
		),
		dependenciesSatisfied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orderflow_dependencies_satisfied_total",
				Help: "Dependency edges moved to satisfied",
			},
		),
		ordersReleased: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orderflow_orders_released_total",
				Help: "Blocked orders released to pending by cascade",
			},
		),
		assignmentsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orderflow_assignments_rejected_total",
				Help: "Assignments refused because dependencies are unmet",
			},
		),
		cascadeFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orderflow_cascade_fanout",
				Help:    "Dependent edges touched per cascade release",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
	}
}

func (c *Collector) OrderCreated(orderType, status string) {
	if c == nil {
		return
	}
	c.ordersCreated.WithLabelValues(orderType, status).Inc()
}

func (c *Collector) Transition(from, to string) {
	if c == nil || from == to {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) Cascade(edges, satisfied, released int) {
	if c == nil {
		return
	}
	c.cascadeFanout.Observe(float64(edges))
	c.dependenciesSatisfied.Add(float64(satisfied))
	c.ordersReleased.Add(float64(released))
}

func (c *Collector) AssignmentRejected() {
	if c == nil {
		return
	}
	c.assignmentsRejected.Inc()
}

// Registry exposes the underlying registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
