// Package memstore provides in-memory KVStore/BlobStore implementations
// for unit tests, grounded on the teacher's mutex-guarded-map shape
// (pkg/session/manager.go, superseded).
package memstore

import (
	"context"
	"sync"

	"github.com/tarsy-coach/coachcore/pkg/store"
)

// Store implements both store.KVStore and store.BlobStore over a single
// mutex-guarded map, which is sufficient for tests that never collide on
// key names across the two capabilities.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
	blob map[string]string
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte), blob: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store) GetContent(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blob[ref]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) PutContent(_ context.Context, ref string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob[ref] = content
	return nil
}
