// Package store defines the KVStore and BlobStore capabilities spec.md §1
// treats as external collaborators, with only their access patterns
// specified: a persistent key-value store for Topic/Configuration/Template
// metadata, and an object store for prompt text.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KVStore.Get and BlobStore.Get when the key
// does not exist.
var ErrNotFound = errors.New("store: not found")

// KVStore is a persistent key-value store keyed by entity id, used for
// Topic, Configuration, and Template metadata lookups (spec.md §6.4).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// BlobStore is object storage for prompt text, addressed by opaque
// blob_ref (spec.md §3.1's Template.blob_ref).
type BlobStore interface {
	GetContent(ctx context.Context, ref string) (string, error)
	PutContent(ctx context.Context, ref string, content string) error
}
