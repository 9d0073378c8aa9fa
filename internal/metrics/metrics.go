package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts handled HTTP requests by path and status code
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "The total number of handled webhook requests",
		},
		[]string{"path", "status"},
	)

	// RequestDuration tracks request handling latency by path
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_request_duration_seconds",
			Help:    "The duration of webhook request handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// HostOperations counts provision and deprovision attempts by result
	HostOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_operations_total",
			Help: "The total number of host provision and deprovision operations",
		},
		[]string{"action", "result"},
	)

	// SideEffectFailures counts swallowed best-effort failures by effect
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "The total number of failed best-effort side effects",
		},
		[]string{"effect"},
	)
)
