// Package storage is the boundary to the content-addressed document store
// (IPFS in production). Upload and Fetch are the only two operations this
// system needs; pinning and gateway mechanics live outside.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrNotFound is returned when no document exists for the content id.
var ErrNotFound = errors.New("storage: content not found")

// Store is a content-addressed blob store.
type Store interface {
	Upload(ctx context.Context, data []byte) (cid string, err error)
	Fetch(ctx context.Context, cid string) ([]byte, error)
}

// MemoryStore is an in-process Store keyed by sha256, used in development
// and tests. Orphaned uploads (blobs never referenced by a submitted
// transaction) are simply left behind, matching the production store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Upload(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	cid := hex.EncodeToString(sum[:])

	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.blobs[cid] = cp
	m.mu.Unlock()
	return cid, nil
}

func (m *MemoryStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[cid]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
