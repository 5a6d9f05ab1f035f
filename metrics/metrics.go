// Package metrics holds the prometheus collectors of the enrollment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentCallbacks counts gateway callbacks.
	// Labels:
	//   - provider: "generic", "mpesa", "midtrans"
	//   - outcome: "applied", "duplicate", "unknown_reference", "rejected", "ignored", "error"
	PaymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_payment_callbacks_total",
			Help: "Total number of payment gateway callbacks by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// PaymentInitiations counts charge requests sent to a gateway.
	PaymentInitiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_payment_initiations_total",
			Help: "Total number of payment initiations by provider and result",
		},
		[]string{"provider", "result"},
	)

	EnrollmentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_enrollment_transitions_total",
			Help: "Total number of applied enrollment status transitions",
		},
		[]string{"from", "to"},
	)

	EnrollmentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_enrollments_created_total",
			Help: "Total number of enrollments created by initial status",
		},
		[]string{"status"},
	)

	// ProgressWriteConflicts counts optimistic concurrency retries on the
	// learning progress document.
	ProgressWriteConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_progress_write_conflicts_total",
			Help: "Total number of learning progress version conflicts",
		},
	)

	ProgressUpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lms_progress_update_duration_seconds",
			Help:    "Duration of content progress updates",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	CourseCompletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_course_completions_total",
			Help: "Total number of courses reaching 100% progress",
		},
	)

	// CompletionDispatchSteps counts side-effect steps.
	// Labels:
	//   - step: "certificate", "notification"
	//   - result: "success", "failure", "skipped"
	CompletionDispatchSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_completion_dispatch_steps_total",
			Help: "Total number of completion side-effect steps by result",
		},
		[]string{"step", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lms_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
