package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueConfig(t *testing.T) {
	q := DefaultQueueConfig()

	assert.Equal(t, 4, q.WorkerCount)
	assert.Equal(t, 20, q.MaxConcurrentSessions)
	assert.Equal(t, 500*time.Millisecond, q.PollInterval)
	assert.Equal(t, 200*time.Millisecond, q.PollIntervalJitter)
	assert.Equal(t, 5*time.Minute, q.ProviderTimeout)
	assert.Equal(t, time.Minute, q.WatchdogInterval)
	assert.Equal(t, 10*time.Minute, q.WatchdogThreshold)
	assert.Equal(t, 30*time.Second, q.GracefulShutdownTimeout)
}

func TestQueueConfigToWorkerConfig(t *testing.T) {
	q := DefaultQueueConfig()
	wc := q.ToWorkerConfig()

	assert.Equal(t, q.WorkerCount, wc.WorkerCount)
	assert.Equal(t, q.PollInterval, wc.PollInterval)
	assert.Equal(t, q.PollIntervalJitter, wc.PollIntervalJitter)
	assert.Equal(t, q.ProviderTimeout, wc.ProviderTimeout)
	assert.Equal(t, q.WatchdogInterval, wc.WatchdogInterval)
	assert.Equal(t, q.WatchdogThreshold, wc.WatchdogThreshold)
}

func TestValidateQueue(t *testing.T) {
	valid := func() *QueueConfig { return DefaultQueueConfig() }

	tests := []struct {
		name    string
		mutate  func(*QueueConfig)
		wantErr string
	}{
		{"valid config", func(q *QueueConfig) {}, ""},
		{"zero worker count", func(q *QueueConfig) { q.WorkerCount = 0 }, "worker_count"},
		{"zero max concurrent sessions", func(q *QueueConfig) { q.MaxConcurrentSessions = 0 }, "max_concurrent_sessions"},
		{"zero poll interval", func(q *QueueConfig) { q.PollInterval = 0 }, "poll_interval"},
		{"negative jitter", func(q *QueueConfig) { q.PollIntervalJitter = -1 }, "poll_interval_jitter"},
		{"zero provider timeout", func(q *QueueConfig) { q.ProviderTimeout = 0 }, "provider_timeout"},
		{"zero watchdog interval", func(q *QueueConfig) { q.WatchdogInterval = 0 }, "watchdog_interval"},
		{
			"watchdog threshold below provider timeout",
			func(q *QueueConfig) { q.WatchdogThreshold = q.ProviderTimeout - time.Second },
			"watchdog_threshold",
		},
		{"zero graceful shutdown timeout", func(q *QueueConfig) { q.GracefulShutdownTimeout = 0 }, "graceful_shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid()
			tt.mutate(q)

			cfg := &Config{Queue: q, Retention: DefaultRetentionConfig(), Defaults: DefaultDefaults()}
			err := NewValidator(cfg).validateQueue()

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
