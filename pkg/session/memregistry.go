package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemRegistry is an in-memory, mutex-guarded Registry used by unit tests
// and single-process deployments, grounded on the teacher's
// mutex-guarded-map Manager shape (pkg/session/manager.go, superseded).
type MemRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemRegistry constructs an empty in-memory registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{sessions: make(map[string]*Session)}
}

func clone(s *Session) *Session {
	cp := *s
	cp.History = append([]HistoryEntry{}, s.History...)
	if s.InFlightJobID != nil {
		id := *s.InFlightJobID
		cp.InFlightJobID = &id
	}
	return &cp
}

func (r *MemRegistry) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrConflict
	}
	r.sessions[s.ID] = clone(s)
	return nil
}

func (r *MemRegistry) Get(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *MemRegistry) GetActiveByTopic(_ context.Context, tenantID, userID, topicID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.DeletedAt != nil {
			continue
		}
		if s.TenantID == tenantID && s.UserID == userID && s.TopicID == topicID && s.Status == StatusActive {
			return clone(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemRegistry) CompareAndSwap(_ context.Context, mutated *Session, expectedVersion int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[mutated.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrConflict
	}
	next := clone(mutated)
	next.Version = current.Version + 1
	r.sessions[next.ID] = next
	return clone(next), nil
}

func (r *MemRegistry) List(_ context.Context, tenantID, userID string, limit int) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.DeletedAt != nil {
			continue
		}
		if s.TenantID == tenantID && s.UserID == userID {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemRegistry) ReapExpired(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, s := range r.sessions {
		if s.Status.Terminal() && s.LastActivityAt.Before(olderThan) {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

func (r *MemRegistry) SoftDelete(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	next := clone(s)
	next.DeletedAt = &now
	r.sessions[id] = next
	return nil
}

func (r *MemRegistry) Restore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	next := clone(s)
	next.DeletedAt = nil
	r.sessions[id] = next
	return nil
}
