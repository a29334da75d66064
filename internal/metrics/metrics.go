package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests handled by the admin API.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// BackupRunsTotal counts backup executions by terminal outcome.
	BackupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_runs_total",
			Help: "Total number of backup job executions.",
		},
		[]string{"job_name", "status"},
	)

	// BackupBytesTotal counts bytes reported transferred by the tool.
	BackupBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_bytes_transferred_total",
			Help: "Total bytes transferred by successful backup runs.",
		},
		[]string{"job_name"},
	)

	// QueueDepth tracks job ids waiting in the execution gate.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Number of job ids queued for execution.",
		},
	)

	// StuckJobsResetTotal counts jobs recovered by the reconciler after
	// being abandoned in progress.
	StuckJobsResetTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stuck_jobs_reset_total",
			Help: "Total number of in-progress jobs reset by reconciliation.",
		},
	)

	// NotificationFailuresTotal counts per-recipient send failures.
	NotificationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of failed notification deliveries.",
		},
	)
)
