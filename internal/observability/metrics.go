// Package observability exposes Prometheus metrics derived from the event
// bus and builds the process logger.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/butler/internal/events"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TaskEvents   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	TasksByState *prometheus.GaugeVec
	ChoiceEvents *prometheus.CounterVec
	Messages     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. A nil reg gets a fresh
// registry, which keeps tests and multiple instances independent.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		TaskEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Task lifecycle events by type.",
		}, []string{"event"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Run time of settled tasks by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),
		TasksByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Known tasks by status, from the latest scheduler snapshot.",
		}, []string{"status"}),
		ChoiceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "choice_events_total",
			Help:      "Pending-choice events by kind and type.",
		}, []string{"kind", "event"}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Conversation messages by role.",
		}, []string{"role"}),
		gatherer: reg,
	}
}

// Observe records one bus event.
func (m *Metrics) Observe(ev events.Event) {
	switch e := ev.(type) {
	case events.TaskQueuedEvent, events.TaskStartedEvent, events.TaskCancelledEvent:
		m.TaskEvents.WithLabelValues(ev.EventType()).Inc()
	case events.TaskCompletedEvent:
		m.TaskEvents.WithLabelValues(ev.EventType()).Inc()
		m.TaskDuration.WithLabelValues("completed").Observe(e.Duration.Seconds())
	case events.TaskFailedEvent:
		m.TaskEvents.WithLabelValues(ev.EventType()).Inc()
		m.TaskDuration.WithLabelValues("failed").Observe(e.Duration.Seconds())
	case events.SchedulerProgressEvent:
		m.TasksByState.WithLabelValues("queued").Set(float64(e.Queued))
		m.TasksByState.WithLabelValues("running").Set(float64(e.Running))
		m.TasksByState.WithLabelValues("completed").Set(float64(e.Completed))
		m.TasksByState.WithLabelValues("failed").Set(float64(e.Failed))
		m.TasksByState.WithLabelValues("cancelled").Set(float64(e.Cancelled))
	case events.ChoiceOpenedEvent:
		m.ChoiceEvents.WithLabelValues(e.Kind, "opened").Inc()
	case events.ChoiceQueuedEvent:
		m.ChoiceEvents.WithLabelValues(e.Kind, "queued").Inc()
	case events.ChoiceResolvedEvent:
		m.ChoiceEvents.WithLabelValues(e.Kind, "resolved").Inc()
	case events.MessageEvent:
		m.Messages.WithLabelValues(e.Role).Inc()
	}
}

// Consume observes events from ch until it closes or ctx is cancelled.
func (m *Metrics) Consume(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
