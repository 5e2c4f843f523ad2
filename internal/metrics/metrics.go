package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ElementsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whiteboard_elements_created_total",
			Help: "Elements created, by element type",
		},
		[]string{"type"},
	)
	ModerationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whiteboard_moderation_decisions_total",
			Help: "Moderation status changes applied, by status, reason and source (auto/manual)",
		},
		[]string{"status", "reason", "source"},
	)
	ModerationDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whiteboard_moderation_discarded_total",
			Help: "Automatic verdicts discarded because the element changed while it was classified",
		},
	)
	ModerationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whiteboard_moderation_failures_total",
			Help: "Classification passes that errored, panicked or timed out",
		},
	)
	ModerationQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whiteboard_moderation_queue_dropped_total",
			Help: "Elements left pending for the sweeper because the moderation queue was full",
		},
	)
	ClassificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whiteboard_moderation_classification_seconds",
			Help:    "Time spent classifying one element",
			Buckets: prometheus.DefBuckets,
		},
	)
	VotesCast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whiteboard_votes_cast_total",
			Help: "Filter votes registered, by filter",
		},
		[]string{"filter"},
	)
	ActiveFilterChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whiteboard_active_filter_changes_total",
			Help: "Session filter activations and deactivations",
		},
		[]string{"filter", "change"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "whiteboard_active_sessions",
			Help: "Whiteboard sessions currently held in memory",
		},
	)
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "whiteboard_connected_clients",
			Help: "Open websocket connections",
		},
	)
)

var registerOnce sync.Once

// Register adds the whiteboard collectors to the default registry. Call this from main.go
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ElementsCreated,
			ModerationDecisions,
			ModerationDiscarded,
			ModerationFailures,
			ModerationQueueDropped,
			ClassificationDuration,
			VotesCast,
			ActiveFilterChanges,
			ActiveSessions,
			ConnectedClients,
		)
	})
}
