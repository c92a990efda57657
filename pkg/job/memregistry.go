package job

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemRegistry is an in-memory, mutex-guarded Registry used by unit tests
// and single-process deployments, grounded on the teacher's
// mutex-guarded-map shape (pkg/session/manager.go, superseded in this repo
// by pkg/session.MemRegistry).
type MemRegistry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemRegistry constructs an empty in-memory registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{jobs: make(map[string]*Job)}
}

func clone(j *Job) *Job {
	cp := *j
	if j.Input != nil {
		cp.Input = make(map[string]any, len(j.Input))
		for k, v := range j.Input {
			cp.Input[k] = v
		}
	}
	return &cp
}

func (r *MemRegistry) Create(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return ErrDuplicateID
	}
	r.jobs[j.ID] = clone(j)
	return nil
}

func (r *MemRegistry) live(j *Job, now time.Time) bool {
	return j.DeletedAt == nil && !j.Expired(now)
}

func (r *MemRegistry) Get(_ context.Context, id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || !r.live(j, time.Now()) {
		return nil, ErrNotFound
	}
	return clone(j), nil
}

func (r *MemRegistry) Transition(_ context.Context, id string, fromStatus Status, m Mutation) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || !r.live(j, time.Now()) {
		return nil, ErrNotFound
	}
	if j.Status != fromStatus {
		return nil, ErrConflict
	}
	next := clone(j)
	next.Status = m.To
	if m.OutputMessage != nil {
		next.OutputMessage = m.OutputMessage
	}
	if m.IsFinal != nil {
		next.IsFinal = m.IsFinal
	}
	if m.Result != nil {
		next.Result = m.Result
	}
	if m.Error != nil {
		next.Error = m.Error
	}
	if m.ErrorCode != nil {
		next.ErrorCode = m.ErrorCode
	}
	if m.StartedAt != nil {
		next.StartedAt = m.StartedAt
	}
	if m.FinishedAt != nil {
		next.FinishedAt = m.FinishedAt
	}
	if m.ProcessingTimeMS != nil {
		next.ProcessingTimeMS = m.ProcessingTimeMS
	}
	r.jobs[id] = next
	return clone(next), nil
}

func (r *MemRegistry) ClaimNextPending(_ context.Context, now time.Time) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *Job
	for _, j := range r.jobs {
		if !r.live(j, now) || j.Status != StatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, ErrNotFound
	}
	next := clone(oldest)
	next.Status = StatusProcessing
	next.StartedAt = &now
	r.jobs[next.ID] = next
	return clone(next), nil
}

func (r *MemRegistry) ListStuckProcessing(_ context.Context, olderThan time.Time) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Job, 0)
	for _, j := range r.jobs {
		if j.DeletedAt != nil {
			continue
		}
		if j.Status == StatusProcessing && j.StartedAt != nil && j.StartedAt.Before(olderThan) {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(*out[k].StartedAt) })
	return out, nil
}

func (r *MemRegistry) ReapExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.Expired(now) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemRegistry) SoftDelete(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	next := clone(j)
	next.DeletedAt = &now
	r.jobs[id] = next
	return nil
}

func (r *MemRegistry) Restore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	next := clone(j)
	next.DeletedAt = nil
	r.jobs[id] = next
	return nil
}

func (r *MemRegistry) Search(_ context.Context, query string, limit int) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(query)
	out := make([]*Job, 0)
	for _, j := range r.jobs {
		if j.DeletedAt != nil {
			continue
		}
		hay := ""
		if j.OutputMessage != nil {
			hay += strings.ToLower(*j.OutputMessage)
		}
		if j.Error != nil {
			hay += " " + strings.ToLower(*j.Error)
		}
		if strings.Contains(hay, q) {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
