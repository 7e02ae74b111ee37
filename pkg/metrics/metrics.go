// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProposalsTotal tracks proposals by event kind and outcome
	ProposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "approval",
			Name:      "proposals_total",
			Help:      "Total number of event proposals by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// DecisionsTotal tracks authorise/reject decisions
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Total number of authorisation decisions by kind and decision",
		},
		[]string{"kind", "decision"},
	)

	// IntegrityViolationsTotal counts chain corruption detected during traversal
	IntegrityViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "chain",
			Name:      "integrity_violations_total",
			Help:      "Total number of chain integrity violations detected during traversal",
		},
	)

	// ChainLength observes chain lengths seen by history replay
	ChainLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "chain",
			Name:      "length",
			Help:      "Number of events in replayed chains",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// AuditFindingsTotal tracks diagnostic scan findings by type
	AuditFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "audit",
			Name:      "findings_total",
			Help:      "Total number of diagnostic scan findings by type",
		},
		[]string{"type"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordProposal records a proposal outcome
func RecordProposal(kind, outcome string) {
	ProposalsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDecision records an authorise or reject decision
func RecordDecision(kind, decision string) {
	DecisionsTotal.WithLabelValues(kind, decision).Inc()
}

// RecordIntegrityViolation counts one detected chain corruption
func RecordIntegrityViolation() {
	IntegrityViolationsTotal.Inc()
}

// RecordChainLength observes the length of a replayed chain
func RecordChainLength(length int) {
	ChainLength.Observe(float64(length))
}

// RecordAuditFinding records a diagnostic scan finding
func RecordAuditFinding(findingType string) {
	AuditFindingsTotal.WithLabelValues(findingType).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordRedisOperation records the duration of a Redis operation
func RecordRedisOperation(operation string, durationSeconds float64) {
	RedisOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}
