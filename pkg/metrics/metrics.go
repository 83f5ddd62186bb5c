package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SagaRuns records provisioning saga executions by trigger kind and result
	// (automated|manual_followup|aborted|rejected).
	SagaRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewdeck_saga_runs_total",
			Help: "Total number of provisioning saga executions",
		},
		[]string{"trigger", "result"},
	)

	// StepOutcomes counts individual saga step results (success|failed|skipped).
	StepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewdeck_saga_steps_total",
			Help: "Total number of saga step outcomes",
		},
		[]string{"step", "status"},
	)

	// ExternalCallLatency measures latencies of external system calls.
	ExternalCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewdeck_external_call_seconds",
			Help:    "External system call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"system", "operation", "result"},
	)

	// TrackerListQueries counts task aggregator list queries by outcome
	// (ok|failed|credential_missing|credential_invalid).
	TrackerListQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewdeck_tracker_list_queries_total",
			Help: "Total number of tracker list queries issued by the aggregator",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latency by method, route, and status.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewdeck_api_request_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// LeaseContention counts saga lease acquisitions that found the entity busy.
	LeaseContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewdeck_lease_contention_total",
			Help: "Number of saga runs rejected because the entity lease was held",
		},
	)
)
