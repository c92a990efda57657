// Package cleanup periodically enforces the retention policies of
// SPEC_FULL.md's Tiered Configuration Resolver: job TTL expiry, terminal
// session retention, and event-log pruning.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/tarsy-coach/coachcore/pkg/config"
)

// JobReaper removes expired jobs. Satisfied by job.Registry.
type JobReaper interface {
	ReapExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionReaper removes terminal sessions past their retention window.
// Satisfied by session.Registry.
type SessionReaper interface {
	ReapExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// EventPruner removes persisted events past their TTL. Implemented by the
// Postgres-backed event bus; nil in deployments without one (the in-memory
// bus keeps no durable log to prune).
type EventPruner interface {
	PruneEvents(ctx context.Context, olderThan time.Time) (int, error)
}

// Reaper runs the three retention sweeps on a fixed interval. All sweeps are
// idempotent and safe to run from multiple replicas concurrently.
type Reaper struct {
	cfg      *config.RetentionConfig
	jobs     JobReaper
	sessions SessionReaper
	events   EventPruner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper constructs a Reaper. events may be nil.
func NewReaper(cfg *config.RetentionConfig, jobs JobReaper, sessions SessionReaper, events EventPruner) *Reaper {
	return &Reaper{cfg: cfg, jobs: jobs, sessions: sessions, events: events}
}

// Start launches the background sweep loop.
func (r *Reaper) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	slog.Info("cleanup reaper started",
		"session_retention_days", r.cfg.SessionRetentionDays,
		"event_ttl", r.cfg.EventTTL,
		"interval", r.cfg.CleanupInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("cleanup reaper stopped")
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	r.sweepAll(ctx)

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepAll(ctx)
		}
	}
}

func (r *Reaper) sweepAll(ctx context.Context) {
	r.reapJobs(ctx)
	r.reapSessions(ctx)
	r.pruneEvents(ctx)
}

func (r *Reaper) reapJobs(ctx context.Context) {
	count, err := r.jobs.ReapExpired(ctx, time.Now())
	if err != nil {
		slog.Error("retention: job reap failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: reaped expired jobs", "count", count)
	}
}

func (r *Reaper) reapSessions(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -r.cfg.SessionRetentionDays)
	count, err := r.sessions.ReapExpired(ctx, cutoff)
	if err != nil {
		slog.Error("retention: session reap failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: reaped terminal sessions", "count", count)
	}
}

func (r *Reaper) pruneEvents(ctx context.Context) {
	if r.events == nil {
		return
	}
	cutoff := time.Now().Add(-r.cfg.EventTTL)
	count, err := r.events.PruneEvents(ctx, cutoff)
	if err != nil {
		slog.Error("retention: event prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: pruned expired events", "count", count)
	}
}
