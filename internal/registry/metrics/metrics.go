package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
type Metrics struct {
	// Codes issued by prefix and path ("generate", "confirm", "version")
	CodesIssued *prometheus.CounterVec

	// Allocation conflicts that exhausted their retries
	AllocationContention prometheus.Counter

	// Reservation lifecycle outcomes by terminal status
	ReservationOutcome *prometheus.CounterVec

	// Validation verdicts
	ValidationVerdict *prometheus.CounterVec

	// Overall generate latency including sequence allocation
	GenerateLatency prometheus.Histogram
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "serialregistry_codes_issued_total",
			Help: "Total serial codes issued by prefix and issuance path",
		}, []string{"prefix", "path"}), // path: "generate", "confirm", "version"

		AllocationContention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "serialregistry_allocation_contention_total",
			Help: "Sequence allocations that gave up after exhausting retries",
		}),

		ReservationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "serialregistry_reservation_outcomes_total",
			Help: "Reservations reaching a terminal status",
		}, []string{"status"}), // status: "confirmed", "expired", "voided"

		ValidationVerdict: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "serialregistry_validation_verdicts_total",
			Help: "Validation requests by verdict",
		}, []string{"verdict"}), // verdict: "valid", "invalid"

		GenerateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "serialregistry_generate_duration_seconds",
			Help:    "Duration of code generation including sequence allocation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementIssued records a code handed to a caller.
func (m *Metrics) IncrementIssued(prefix, path string) {
	if m != nil {
		m.CodesIssued.WithLabelValues(prefix, path).Inc()
	}
}

// IncrementContention records an allocation that gave up under contention.
func (m *Metrics) IncrementContention() {
	if m != nil {
		m.AllocationContention.Inc()
	}
}

// IncrementReservationOutcome records a reservation reaching a terminal status.
func (m *Metrics) IncrementReservationOutcome(status string) {
	if m != nil {
		m.ReservationOutcome.WithLabelValues(status).Inc()
	}
}

// IncrementValidation records a validation verdict.
func (m *Metrics) IncrementValidation(valid bool) {
	if m == nil {
		return
	}
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	m.ValidationVerdict.WithLabelValues(verdict).Inc()
}

// ObserveGenerateLatency records the total generation duration.
func (m *Metrics) ObserveGenerateLatency(d time.Duration) {
	if m != nil {
		m.GenerateLatency.Observe(d.Seconds())
	}
}
