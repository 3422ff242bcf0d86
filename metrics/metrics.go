// Package metrics exposes commit/lock/upload instrumentation directly via
// prometheus/client_golang, replacing the teacher's docker/go-metrics
// namespace wrapper (which added no domain logic of its own — see
// DESIGN.md) with counters and histograms scoped to this server's
// operations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vsyncd"

var (
	// Commits counts successful commit() calls per repository.
	Commits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Total number of commits that advanced head.",
	}, []string{"repository"})

	// Rollbacks counts rollback() calls per repository.
	Rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollbacks_total",
		Help:      "Total number of staging rollbacks.",
	}, []string{"repository"})

	// Conflicts counts find_changed responses that reported at least one
	// conflicting path.
	Conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_total",
		Help:      "Total number of find_changed calls reporting a conflict.",
	}, []string{"repository"})

	// LockWaitSeconds observes how long a handler waited to acquire the
	// process-level flock before giving up or succeeding.
	LockWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lock_wait_seconds",
		Help:      "Time spent attempting to acquire the process lock.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"repository"})

	// BlobUploadSeconds observes push_file handler duration.
	BlobUploadSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "blob_upload_seconds",
		Help:      "Duration of push_file blob uploads.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"repository"})
)

func init() {
	prometheus.MustRegister(Commits, Rollbacks, Conflicts, LockWaitSeconds, BlobUploadSeconds)
}
