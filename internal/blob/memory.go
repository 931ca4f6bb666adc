package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"strongbox/internal/engine"
)

// MemoryStore is an in-memory implementation of engine.BlobStore.
// It is useful for testing. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a blob. Idempotent: a concurrent put of identical content just
// does redundant work, never corruption.
func (m *MemoryStore) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[hash] = data
	return nil
}

// Get streams a blob to w.
func (m *MemoryStore) Get(ctx context.Context, hash string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	data, ok := m.blobs[hash]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("blob %s: %w", hash, engine.ErrNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Hashes returns every stored hash.
func (m *MemoryStore) Hashes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	hashes := make([]string, 0, len(m.blobs))
	for h := range m.blobs {
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// Delete removes a blob. Deleting an absent blob is a no-op.
func (m *MemoryStore) Delete(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, hash)
	return nil
}

// Validate always succeeds for the in-memory store.
func (m *MemoryStore) Validate(ctx context.Context) error { return nil }

// Len returns the number of stored blobs. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Compile-time check that MemoryStore implements engine.BlobStore.
var _ engine.BlobStore = (*MemoryStore)(nil)
