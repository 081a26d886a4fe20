package monitoring

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	seatOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_operations_total",
			Help: "Seat lock operations by outcome",
		},
		[]string{"operation", "status"},
	)

	seatsTouched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_touched_total",
			Help: "Seats locked, released or sold",
		},
		[]string{"action"},
	)

	versionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seat_map_version_conflicts_total",
			Help: "Optimistic seat map writes that lost to a concurrent writer",
		},
	)

	sweepReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_released_locks_total",
			Help: "Locks released by the expiry sweeper",
		},
	)

	sweepFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_failures_total",
			Help: "Seat maps the sweeper failed to reconcile",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of a full sweep pass",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	paymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Payment status changes handled by the reconciler",
		},
		[]string{"provider", "status"},
	)

	seatLockDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seat_lock_duration_seconds",
			Help:    "Requested duration of checkout locks",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)

// Monitor is the metrics sink handed to services. A nil *Monitor is valid
// and records nothing.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackSeatOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	seatOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackSeats(action string, n int) {
	if m == nil || n == 0 {
		return
	}
	seatsTouched.WithLabelValues(action).Add(float64(n))
}

func (m *Monitor) TrackVersionConflict() {
	if m == nil {
		return
	}
	versionConflicts.Inc()
}

func (m *Monitor) TrackSeatLock(duration time.Duration) {
	if m == nil {
		return
	}
	seatLockDuration.Observe(duration.Seconds())
}

func (m *Monitor) TrackSweep(released, failures int, took time.Duration) {
	if m == nil {
		return
	}
	sweepReleased.Add(float64(released))
	sweepFailures.Add(float64(failures))
	sweepDuration.Observe(took.Seconds())
}

func (m *Monitor) TrackPayment(provider, status string) {
	if m == nil {
		return
	}
	paymentOutcomes.WithLabelValues(provider, status).Inc()
}

// Serve exposes /metrics on addr until the server fails.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server stopped: %v", err)
	}
}
