package engine

import (
	"context"
	"io"
)

// BlobStore provides an interface for content-addressed blob storage.
// Blobs are ciphertext, keyed by the SHA-256 of their content; the store
// never sees plaintext. All operations stream through io.Reader/io.Writer so
// large files never have to fit in memory twice.
type BlobStore interface {
	// Put stores a blob under its content hash. Writes are atomic: a partial
	// or cancelled write is never visible under the hash. Idempotent —
	// storing the same hash again is safe and cheap.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, hash string, r io.Reader, size int64) error

	// Get streams a blob to w. Returns ErrNotFound for unknown hashes and
	// ErrStorage when the backend is unreachable.
	Get(ctx context.Context, hash string, w io.Writer) error

	// Hashes returns every hash currently stored. Used by the orphan sweeper;
	// never called on the request path.
	Hashes(ctx context.Context) ([]string, error)

	// Delete removes a blob. Only the orphan sweeper and purge call this;
	// normal operation never deletes inline.
	Delete(ctx context.Context, hash string) error

	// Validate verifies that the backend is accessible and properly configured.
	Validate(ctx context.Context) error
}
