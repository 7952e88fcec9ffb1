package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "status"},
	)

	// 分类器调用延迟（毫秒）
	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_latency_ms",
			Help:    "External classifier call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"use", "status"},
	)

	// ClassifierFallbackCount counts safe-default substitutions by reason.
	ClassifierFallbackCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_fallback_count",
			Help: "Classifier calls replaced by the safe default",
		},
		[]string{"use", "reason"}, // reason: error, timeout, malformed, circuit_open, rate_limited
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Queries slower than the tracer threshold",
		},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	ProposalEmittedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposal_emitted_count",
			Help: "System messages emitted by the intent pipeline",
		},
		[]string{"kind"}, // kind: none (reply only), schedule_sessions, create_milestones
	)

	ProposalConfirmedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposal_confirmed_count",
			Help: "Confirmation requests by outcome",
		},
		[]string{"outcome"}, // outcome: confirmed, already_confirmed, partial
	)

	DraftMaterializedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draft_materialized_count",
			Help: "Entities created from proposal drafts",
		},
		[]string{"kind"},
	)

	GradingCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_count",
			Help: "Grading passes by verdict",
		},
		[]string{"verdict"}, // verdict: pass, fail, pending
	)

	MilestoneCompletedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestone_completed_count",
			Help: "Milestones flipped to completed by the evaluator",
		},
	)

	RealtimePublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_publish_count",
			Help: "Realtime events published per type",
		},
		[]string{"event", "status"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, status string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, status).Observe(float64(duration.Milliseconds()))
}

// RecordClassifierCall 记录分类器调用延迟
func RecordClassifierCall(use, status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(use, status).Observe(float64(duration.Milliseconds()))
}

func IncrementClassifierFallback(use, reason string) {
	ClassifierFallbackCount.WithLabelValues(use, reason).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

func IncrementProposalEmitted(kind string) {
	ProposalEmittedCount.WithLabelValues(kind).Inc()
}

func IncrementProposalConfirmed(outcome string) {
	ProposalConfirmedCount.WithLabelValues(outcome).Inc()
}

func AddDraftsMaterialized(kind string, n int) {
	DraftMaterializedCount.WithLabelValues(kind).Add(float64(n))
}

func IncrementGrading(verdict string) {
	GradingCount.WithLabelValues(verdict).Inc()
}

func IncrementMilestoneCompleted() {
	MilestoneCompletedCount.Inc()
}

func IncrementRealtimePublish(event, status string) {
	RealtimePublishCount.WithLabelValues(event, status).Inc()
}
