package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tarsy-coach/coachcore/pkg/events"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
	"github.com/tarsy-coach/coachcore/pkg/topic"
	"github.com/tarsy-coach/coachcore/pkg/topicconfig"
)

// WorkerPool manages a pool of queue workers and the watchdog, grounded on
// the teacher's WorkerPool (pkg/queue/pool.go), retargeted from an
// ent-backed AlertSession pool to the job.Registry/session.Registry pair.
type WorkerPool struct {
	podID string
	cfg   Config

	jobs     job.Registry
	sessions session.Registry
	engine   *topic.Engine
	cfgs     *topicconfig.Resolver
	bus      events.Bus

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	watchdog watchdogState
}

// NewWorkerPool constructs a WorkerPool. cfgs may be nil to skip
// Configuration Resolver overrides.
func NewWorkerPool(podID string, cfg Config, jobs job.Registry, sessions session.Registry, engine *topic.Engine, cfgs *topicconfig.Resolver, bus events.Bus) *WorkerPool {
	return &WorkerPool{
		podID: podID, cfg: cfg,
		jobs: jobs, sessions: sessions, engine: engine, cfgs: cfgs, bus: bus,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the watchdog. Safe to call more than
// once; later calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		w := NewWorker(workerID, p.podID, p.cfg, p.jobs, p.sessions, p.engine, p.cfgs, p.bus, p)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	if p.cfg.WatchdogInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWatchdog(ctx)
		}()
	}

	slog.Info("worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish; workers
// finish their current job before exiting.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool gracefully")

	active := p.getActiveJobIDs()
	if len(active) > 0 {
		slog.Info("waiting for active jobs to complete", "count", len(active), "job_ids", active)
	}

	for _, w := range p.workers {
		w.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("worker pool stopped gracefully")
}

// RegisterJob stores a cancel function for manual cancellation. Satisfies
// JobRegistry.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes the cancel function once a job reaches a terminal
// state. Satisfies JobRegistry.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob triggers context cancellation for a job on this pod. Returns
// true if the job was found and cancelled on this pod.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health reports the pool's aggregate health.
func (p *WorkerPool) Health() *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.watchdog.mu.Lock()
	lastScan := p.watchdog.lastScan
	stuckReaped := p.watchdog.stuckJobsReaped
	p.watchdog.mu.Unlock()

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		WorkerStats:      workerStats,
		LastWatchdogScan: lastScan,
		StuckJobsReaped:  stuckReaped,
	}
}

func (p *WorkerPool) getActiveJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}
