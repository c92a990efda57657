package config

import (
	"time"

	"github.com/tarsy-coach/coachcore/pkg/queue"
)

// QueueConfig is the YAML-facing shape of the dispatch pipeline's worker
// pool tuning. ToWorkerConfig bridges it into the runtime queue.Config.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentSessions is the global limit of concurrent sessions being
	// processed across all replicas, enforced at dispatch time.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// PollInterval is the base interval for checking pending jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ProviderTimeout is the default budget given to a provider call before
	// a job is considered stuck.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// WatchdogInterval is how often the watchdog scans for stuck jobs.
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`

	// WatchdogThreshold is how long a job can run without progress before
	// the watchdog reclaims it.
	WatchdogThreshold time.Duration `yaml:"watchdog_threshold"`

	// GracefulShutdownTimeout is the max time to wait for in-flight jobs to
	// finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxConcurrentSessions:   20,
		PollInterval:            500 * time.Millisecond,
		PollIntervalJitter:      200 * time.Millisecond,
		ProviderTimeout:         5 * time.Minute,
		WatchdogInterval:        time.Minute,
		WatchdogThreshold:       10 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// ToWorkerConfig converts the YAML-facing configuration into the shape the
// dispatch pipeline's worker pool actually runs on.
func (q *QueueConfig) ToWorkerConfig() queue.Config {
	return queue.Config{
		WorkerCount:        q.WorkerCount,
		PollInterval:       q.PollInterval,
		PollIntervalJitter: q.PollIntervalJitter,
		ProviderTimeout:    q.ProviderTimeout,
		WatchdogInterval:   q.WatchdogInterval,
		WatchdogThreshold:  q.WatchdogThreshold,
	}
}
