package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"strongbox/internal/engine"
)

// FileSystemStore is a filesystem-based implementation of engine.BlobStore.
// Blobs are fanned out by the first two hex digits of their hash:
//
//	<root>/
//	  ab/
//	    ab34… (ciphertext blobs, named by SHA-256)
//	  tmp/
//	    …    (in-progress writes)
//
// Writes go to a temp file first and are renamed into place, so a blob is
// either fully present under its hash or absent; a cancelled or failed write
// is never addressable.
type FileSystemStore struct {
	root   string
	tmpDir string
}

// NewFileSystemStore creates a filesystem store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileSystemStore{root: root, tmpDir: tmpDir}, nil
}

func (s *FileSystemStore) blobPath(hash string) string {
	fan := "00"
	if len(hash) >= 2 {
		fan = hash[:2]
	}
	return filepath.Join(s.root, fan, hash)
}

// Put stores a blob under its hash. Idempotent: if the hash already exists
// the reader is drained and the existing blob kept.
func (s *FileSystemStore) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath := s.blobPath(hash)
	if _, err := os.Stat(destPath); err == nil {
		// Content-addressed: same hash means same bytes. Drain the reader
		// to keep the caller's contract, then keep what we have.
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	tmp, err := os.CreateTemp(s.tmpDir, hash+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", storeErr(err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing blob: %w", storeErr(err))
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", storeErr(err))
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return fmt.Errorf("creating fanout directory: %w", storeErr(err))
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("committing blob: %w", storeErr(err))
	}
	return nil
}

// Get streams a blob to w.
func (s *FileSystemStore) Get(ctx context.Context, hash string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s: %w", hash, engine.ErrNotFound)
		}
		return fmt.Errorf("opening blob: %w", storeErr(err))
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading blob: %w", storeErr(err))
	}
	return nil
}

// Hashes walks the fanout directories and returns every stored hash.
func (s *FileSystemStore) Hashes(ctx context.Context) ([]string, error) {
	var hashes []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if path == s.tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		hashes = append(hashes, d.Name())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking store: %w", storeErr(err))
	}
	return hashes, nil
}

// Delete removes a blob. Deleting an absent blob is a no-op.
func (s *FileSystemStore) Delete(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.blobPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", storeErr(err))
	}
	return nil
}

// Validate verifies that the store root is accessible and writable.
func (s *FileSystemStore) Validate(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", storeErr(err))
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}

	probe, err := os.CreateTemp(s.tmpDir, "probe.*")
	if err != nil {
		return fmt.Errorf("store root not writable: %w", storeErr(err))
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// storeErr tags an I/O error as a retryable storage failure.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", engine.ErrStorage, err)
}

// Compile-time check that FileSystemStore implements engine.BlobStore.
var _ engine.BlobStore = (*FileSystemStore)(nil)
