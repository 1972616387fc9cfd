package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"insightline/internal/domain"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightline_transitions_total",
		Help: "Committed insight transitions by event, from_state and to_state",
	}, []string{"event", "from_state", "to_state"})

	transitionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightline_transition_failures_total",
		Help: "Rejected or failed insight transitions by event and error code",
	}, []string{"event", "code"})

	eventPublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightline_event_publish_failures_total",
		Help: "Domain events that could not be delivered to the event sink",
	}, []string{"name"})

	notifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightline_notify_failures_total",
		Help: "Post-generation notifications that failed after a committed approval",
	})

	bulkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightline_bulk_items_total",
		Help: "Bulk operation items by event and outcome (succeeded or failed)",
	}, []string{"event", "outcome"})

	bulkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insightline_bulk_duration_seconds",
		Help:    "Wall time of bulk operations by event",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"event"})
)

// eventLabel keeps the event label bounded to the known events.
func eventLabel(ev domain.Event) string {
	if !ev.Valid() {
		return "unknown"
	}
	return string(ev)
}

func sanitizeCode(code string) string {
	if code == "" {
		return CodeInternal
	}
	return code
}
