// Package queue implements the Asynchronous Dispatch Pipeline (spec.md
// §4.3): a pool of workers that claim pending jobs, drive them through
// the Topic Execution Engine, and publish terminal events — grounded on
// the teacher's pkg/queue worker/pool shape, retargeted from the
// agent-chain SessionExecutor to the seven-step job-dispatch algorithm.
package queue

import (
	"errors"
	"time"
)

// ErrNoJobsAvailable indicates no pending job was claimed this poll.
var ErrNoJobsAvailable = errors.New("queue: no jobs available")

// PoolHealth reports the worker pool's aggregate health, grounded on
// pkg/queue/types.go's PoolHealth.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastWatchdogScan time.Time      `json:"last_watchdog_scan"`
	StuckJobsReaped  int            `json:"stuck_jobs_reaped"`
}

// WorkerHealth reports a single worker's health.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
