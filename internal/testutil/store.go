package testutil

import (
	"strongbox/internal/blob"
)

// NewTestStore creates a new in-memory blob store for testing.
func NewTestStore() *blob.MemoryStore {
	return blob.NewMemoryStore()
}
