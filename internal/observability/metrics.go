// Package observability exports VetBot's Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Alex3496/VetBot/internal/flow"
	"github.com/Alex3496/VetBot/internal/models"
)

// Metrics groups all Prometheus instruments used by the service. Each Metrics owns
// its registry, so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	InboundMessages     *prometheus.CounterVec
	DuplicateDeliveries prometheus.Counter
	Intents             *prometheus.CounterVec
	MenuSelections      *prometheus.CounterVec
	FlowEvents          *prometheus.CounterVec
	CollaboratorErrors  *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	DispatchLatency     prometheus.Histogram
}

// Compile-time check that Metrics observes conversation events.
var _ flow.Observer = (*Metrics)(nil)

// NewMetrics creates the instruments under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by transport and message type.",
		}, []string{"transport", "type"}),
		DuplicateDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_total",
			Help:      "Inbound messages dropped because their id was already processed.",
		}),
		Intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Classified text intents.",
		}, []string{"intent"}),
		MenuSelections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_selections_total",
			Help:      "Menu options selected by users.",
		}, []string{"option"}),
		FlowEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_events_total",
			Help:      "Conversation flow lifecycle events by flow and event.",
		}, []string{"flow", "event"}),
		CollaboratorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Failed calls to external collaborators by operation.",
		}, []string{"operation"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of senders with an active flow.",
		}),
		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_ms",
			Help:      "Time to handle one inbound message in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
}

// IntentClassified implements flow.Observer.
func (m *Metrics) IntentClassified(intent flow.Intent) {
	if m == nil {
		return
	}
	m.Intents.WithLabelValues(string(intent)).Inc()
}

// MenuOptionSelected implements flow.Observer.
func (m *Metrics) MenuOptionSelected(option flow.MenuOption) {
	if m == nil {
		return
	}
	label := string(option)
	if label == "" {
		label = "unknown"
	}
	m.MenuSelections.WithLabelValues(label).Inc()
}

// FlowEvent implements flow.Observer.
func (m *Metrics) FlowEvent(f models.FlowType, event flow.FlowEvent) {
	if m == nil {
		return
	}
	m.FlowEvents.WithLabelValues(string(f), string(event)).Inc()
}

// CollaboratorFailure implements flow.Observer.
func (m *Metrics) CollaboratorFailure(operation string) {
	if m == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(operation).Inc()
}

// InboundMessage counts one delivered message.
func (m *Metrics) InboundMessage(transport string, t models.MessageType) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(transport, string(t)).Inc()
}

// DuplicateDelivery counts one redelivered message.
func (m *Metrics) DuplicateDelivery() {
	if m == nil {
		return
	}
	m.DuplicateDeliveries.Inc()
}

// ObserveDispatch records how long one turn took.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchLatency.Observe(float64(d.Milliseconds()))
}

// SetActiveSessions updates the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// SessionsExpired records idle sessions dropped by the sweeper.
func (m *Metrics) SessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FlowEvents.WithLabelValues("any", string(flow.FlowExpired)).Add(float64(n))
}

// Handler serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
