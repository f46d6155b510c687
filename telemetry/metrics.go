package telemetry

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters the league service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	roundsClosed        *prometheus.CounterVec
	roundConflicts      prometheus.Counter
	roundFailures       prometheus.Counter
	disputeTransitions  *prometheus.CounterVec
	completions         *prometheus.CounterVec
	notificationsQueued prometheus.Counter
	notificationsFailed prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		roundsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "rounds_closed_total",
			Help:      "Rounds closed, by outcome (winner, tie, empty).",
		}, []string{"outcome"}),
		roundConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "round_close_conflicts_total",
			Help:      "Close attempts that found the round already closed by another trigger.",
		}),
		roundFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "round_transition_failures_total",
			Help:      "Round transitions aborted by a persistence failure.",
		}),
		disputeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "dispute_transitions_total",
			Help:      "Dispute state transitions, by target state.",
		}, []string{"state"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "completions_submitted_total",
			Help:      "Completions submitted, by initial status.",
		}, []string{"status"}),
		notificationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "notifications_queued_total",
			Help:      "Notifications accepted for dispatch to the push relay.",
		}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "notifications_failed_total",
			Help:      "Notifications dropped or rejected by the push relay.",
		}),
	}
	registry.MustRegister(
		m.roundsClosed,
		m.roundConflicts,
		m.roundFailures,
		m.disputeTransitions,
		m.completions,
		m.notificationsQueued,
		m.notificationsFailed,
	)
	return m
}

// Handler exposes the registry on a fiber route.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) RoundClosed(outcome string) {
	if m == nil {
		return
	}
	m.roundsClosed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RoundConflict() {
	if m == nil {
		return
	}
	m.roundConflicts.Inc()
}

func (m *Metrics) RoundFailure() {
	if m == nil {
		return
	}
	m.roundFailures.Inc()
}

func (m *Metrics) DisputeTransition(state string) {
	if m == nil {
		return
	}
	m.disputeTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) CompletionSubmitted(status string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(status).Inc()
}

func (m *Metrics) NotificationQueued() {
	if m == nil {
		return
	}
	m.notificationsQueued.Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notificationsFailed.Inc()
}
