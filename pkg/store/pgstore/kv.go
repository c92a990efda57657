package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarsy-coach/coachcore/pkg/store"
)

// KVStore is the Postgres-backed store.KVStore/store.BlobStore, backing
// Topic/Configuration/Template metadata lookups (spec.md §6.4) and
// Template.blob_ref content (spec.md §3.1).
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore constructs a KVStore backed by pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get kv entry: %w", err)
	}
	return value, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("put kv entry: %w", err)
	}
	return nil
}

func (s *KVStore) GetContent(ctx context.Context, ref string) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx, `SELECT content FROM blob_entries WHERE ref = $1`, ref).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get blob content: %w", err)
	}
	return content, nil
}

func (s *KVStore) PutContent(ctx context.Context, ref string, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blob_entries (ref, content, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (ref) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		ref, content)
	if err != nil {
		return fmt.Errorf("put blob content: %w", err)
	}
	return nil
}
