// Package metrics provides Prometheus metrics for the OrbitCheck service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrderEvaluationsTotal tracks order evaluations by resulting action
	OrderEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbitcheck",
			Subsystem: "evaluation",
			Name:      "orders_total",
			Help:      "Total number of order evaluations by action",
		},
		[]string{"action", "first_occurrence"},
	)

	// OrderEvaluationDuration tracks end-to-end evaluation latency
	OrderEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orbitcheck",
			Subsystem: "evaluation",
			Name:      "duration_seconds",
			Help:      "Duration of order evaluations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	// RiskScore tracks the distribution of final risk scores
	RiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "orbitcheck",
			Subsystem: "evaluation",
			Name:      "risk_score",
			Help:      "Distribution of final order risk scores",
			Buckets:   []float64{0, 10, 20, 35, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// RuleEvaluationsTotal tracks individual rule outcomes
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbitcheck",
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Total number of rule evaluations by outcome",
		},
		[]string{"outcome"},
	)

	// RuleEngineDegradedTotal tracks rule engine passes that fell back to score thresholds
	RuleEngineDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbitcheck",
			Subsystem: "rules",
			Name:      "degraded_total",
			Help:      "Total number of rule engine passes that degraded",
		},
		[]string{"reason"},
	)

	// ValidatorCacheTotal tracks validator cache lookups
	ValidatorCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbitcheck",
			Subsystem: "validators",
			Name:      "cache_lookups_total",
			Help:      "Total number of validator cache lookups by result",
		},
		[]string{"validator", "result"},
	)

	// ExternalLookupDuration tracks MX, geocoder and registry latency
	ExternalLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orbitcheck",
			Subsystem: "validators",
			Name:      "external_lookup_seconds",
			Help:      "Duration of external validator lookups in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.2, 2.5, 5},
		},
		[]string{"lookup", "status"},
	)

	// AuditEventsTotal tracks audit events by sink and status
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbitcheck",
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events recorded",
		},
		[]string{"sink", "status"},
	)

	// AuditPublishSeconds is the broker write latency of the event stream.
	AuditPublishSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orbitcheck",
			Subsystem: "audit",
			Name:      "publish_seconds",
			Help:      "Time spent writing one audit event to a sink",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 7),
		},
		[]string{"sink"},
	)
)

// RecordEvaluation records a completed order evaluation
func RecordEvaluation(action string, firstOccurrence bool, score int, durationSeconds float64) {
	first := "false"
	if firstOccurrence {
		first = "true"
	}
	OrderEvaluationsTotal.WithLabelValues(action, first).Inc()
	OrderEvaluationDuration.WithLabelValues("ok").Observe(durationSeconds)
	RiskScore.Observe(float64(score))
}

// RecordEvaluationFailure records an evaluation that returned a fatal error
func RecordEvaluationFailure(durationSeconds float64) {
	OrderEvaluationDuration.WithLabelValues("error").Observe(durationSeconds)
}

// RecordRuleOutcome records a single rule evaluation outcome
// (triggered, not_triggered, error, timeout)
func RecordRuleOutcome(outcome string) {
	RuleEvaluationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRuleEngineDegraded records a degraded rule engine pass
func RecordRuleEngineDegraded(reason string) {
	RuleEngineDegradedTotal.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a validator cache hit or miss
func RecordCacheLookup(validator string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ValidatorCacheTotal.WithLabelValues(validator, result).Inc()
}

// RecordExternalLookup records an external lookup
func RecordExternalLookup(lookup, status string, durationSeconds float64) {
	ExternalLookupDuration.WithLabelValues(lookup, status).Observe(durationSeconds)
}

// RecordAuditEvent records an audit event write
func RecordAuditEvent(sink, status string) {
	AuditEventsTotal.WithLabelValues(sink, status).Inc()
}

func ObserveAuditPublish(sink string, seconds float64) {
	AuditPublishSeconds.WithLabelValues(sink).Observe(seconds)
}
