package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarsy-coach/coachcore/pkg/events"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
)

// watchdogState tracks watchdog scan metrics (thread-safe). Grounded on
// the teacher's orphanState (pkg/queue/orphan.go).
type watchdogState struct {
	mu             sync.Mutex
	lastScan       time.Time
	stuckJobsReaped int
}

// runWatchdog periodically scans for processing jobs stuck past the
// configured threshold. The optional watchdog of spec.md §4.1: "may
// transition long-stuck processing jobs to failed with INTERNAL_ERROR".
// All pods run this independently; ClaimNextPending/Transition's CAS
// makes repeated or concurrent scans idempotent.
func (p *WorkerPool) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.scanForStuckJobs(ctx); err != nil {
				slog.Error("watchdog scan failed", "error", err)
			}
		}
	}
}

// scanForStuckJobs finds processing jobs whose started_at predates the
// watchdog threshold and fails each one with INTERNAL_ERROR, clearing the
// owning session's in-flight marker.
func (p *WorkerPool) scanForStuckJobs(ctx context.Context) error {
	threshold := time.Now().Add(-p.cfg.WatchdogThreshold)

	stuck, err := p.jobs.ListStuckProcessing(ctx, threshold)
	if err != nil {
		return fmt.Errorf("list stuck processing jobs: %w", err)
	}

	if len(stuck) == 0 {
		p.watchdog.mu.Lock()
		p.watchdog.lastScan = time.Now()
		p.watchdog.mu.Unlock()
		return nil
	}

	slog.Warn("watchdog found stuck processing jobs", "count", len(stuck))

	reaped := 0
	for _, j := range stuck {
		if err := p.reapStuckJob(ctx, j); err != nil {
			slog.Error("failed to reap stuck job", "job_id", j.ID, "error", err)
			continue
		}
		reaped++
	}

	p.watchdog.mu.Lock()
	p.watchdog.lastScan = time.Now()
	p.watchdog.stuckJobsReaped += reaped
	p.watchdog.mu.Unlock()

	return nil
}

// reapStuckJob CASes a single stuck job to failed and, for coaching_message
// jobs, clears the owning session's in_flight_job_id so a fresh message
// can be submitted.
func (p *WorkerPool) reapStuckJob(ctx context.Context, j *job.Job) error {
	now := time.Now()
	msg := fmt.Sprintf("watchdog: no terminal update since %s", func() string {
		if j.StartedAt != nil {
			return j.StartedAt.Format(time.RFC3339)
		}
		return "unknown"
	}())
	code := job.ErrCodeInternal

	if _, err := p.jobs.Transition(ctx, j.ID, job.StatusProcessing, job.Mutation{
		To: job.StatusFailed, Error: &msg, ErrorCode: &code, FinishedAt: &now,
	}); err != nil {
		if err == job.ErrConflict {
			// already moved on by its own worker; nothing to reap
			return nil
		}
		return err
	}

	if j.SessionID != "" {
		if s, err := p.sessions.Get(ctx, j.SessionID); err == nil {
			if _, err := session.ClearInFlight(ctx, p.sessions, s, now); err != nil {
				slog.Error("watchdog: clear in-flight failed", "session_id", s.ID, "error", err)
			}
		}
	}

	if p.bus != nil {
		data, err := json.Marshal(events.MessageFailedPayload{
			Type: events.EventMessageFailed, JobID: j.ID, SessionID: j.SessionID, TopicID: j.TopicID,
			Error: msg, ErrorCode: string(code),
		})
		if err == nil {
			if err := p.bus.Publish(ctx, events.SessionChannel(j.SessionID), data); err != nil {
				slog.Warn("watchdog: publish message.failed failed", "job_id", j.ID, "error", err)
			}
		}
	}

	slog.Warn("stuck job reaped by watchdog", "job_id", j.ID)
	return nil
}
