package blob_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"strongbox/internal/blob"
	"strongbox/internal/engine"
	"strongbox/internal/testutil"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	store := blob.NewMemoryStore()
	ctx := context.Background()

	hash := put(t, store, "in memory")

	var buf bytes.Buffer
	if err := store.Get(ctx, hash, &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != "in memory" {
		t.Errorf("Get() = %q, want %q", buf.String(), "in memory")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	if err := store.Get(ctx, "missing", &buf); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() after delete = %d, want 0", store.Len())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()
	store := blob.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := fmt.Sprintf("blob-%d", i)
			hash := testutil.SHA256Hex([]byte(content))
			if err := store.Put(ctx, hash, strings.NewReader(content), int64(len(content))); err != nil {
				t.Errorf("Put(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 16 {
		t.Errorf("Len() = %d, want 16", store.Len())
	}
}
