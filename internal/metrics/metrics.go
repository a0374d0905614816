package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomdesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomdesk",
			Name:      "reservations_created_total",
			Help:      "Reservation requests accepted into pending state.",
		},
	)

	reservationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomdesk",
			Name:      "reservation_conflicts_total",
			Help:      "Reservation requests rejected due to overlapping bookings.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomdesk",
			Name:      "status_transitions_total",
			Help:      "Workflow transitions by action.",
		},
		[]string{"action"},
	)

	scheduleCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomdesk",
			Name:      "schedule_cache_requests_total",
			Help:      "Schedule cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			reservationConflicts,
			statusTransitions,
			scheduleCacheHits,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservationCreated() {
	reservationsCreated.Inc()
}

func IncReservationConflict() {
	reservationConflicts.Inc()
}

func IncTransition(action string) {
	statusTransitions.WithLabelValues(action).Inc()
}

func IncScheduleCache(result string) {
	scheduleCacheHits.WithLabelValues(result).Inc()
}
