package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"strongbox/internal/engine"
)

func TestEngine_History(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("records the lifecycle of a file", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		root := env.mustRoot(t, alice)
		file, _ := env.mustUpload(t, alice, root.ID, "tracked.txt", "v1")
		env.mustUpload(t, alice, root.ID, "tracked.txt", "v2")
		env.mustDownload(t, alice, file.ID)

		page, err := env.eng.History(ctx, alice, engine.FileRef(file.ID), time.Time{}, env.clock.Now(), "", 50)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}

		var actions []string
		for _, e := range page.Entries {
			actions = append(actions, e.Action)
		}
		want := []string{"upload", "upload", "download"}
		if len(actions) != len(want) {
			t.Fatalf("history = %v, want %v", actions, want)
		}
		for i := range want {
			if actions[i] != want[i] {
				t.Errorf("history[%d] = %q, want %q", i, actions[i], want[i])
			}
		}
		for _, e := range page.Entries {
			if e.Result != "success" {
				t.Errorf("entry %q result = %q, want success", e.Action, e.Result)
			}
			if e.Actor != alice.ID {
				t.Errorf("entry %q actor = %q, want %q", e.Action, e.Actor, alice.ID)
			}
		}
	})

	t.Run("denied attempts are recorded", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		root := env.mustRoot(t, alice)
		file, _ := env.mustUpload(t, alice, root.ID, "guarded.txt", "secret")

		var sink noopWriter
		if _, err := env.eng.Download(ctx, bob, file.ID, &sink); !errors.Is(err, engine.ErrDenied) {
			t.Fatalf("Download() by bob error = %v, want ErrDenied", err)
		}

		page, err := env.eng.History(ctx, alice, engine.FileRef(file.ID), time.Time{}, env.clock.Now(), "", 50)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}

		found := false
		for _, e := range page.Entries {
			if e.Actor == bob.ID && e.Result == "denied" {
				found = true
			}
		}
		if !found {
			t.Error("expected a denied entry for bob in the history")
		}
	})

	t.Run("pages through long histories", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		root := env.mustRoot(t, alice)
		file, _ := env.mustUpload(t, alice, root.ID, "busy.txt", "v0")
		for i := 0; i < 5; i++ {
			env.mustDownload(t, alice, file.ID)
		}

		var total int
		cursor := ""
		for {
			page, err := env.eng.History(ctx, alice, engine.FileRef(file.ID), time.Time{}, env.clock.Now(), cursor, 2)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			total += len(page.Entries)
			if page.Cursor == "" {
				break
			}
			cursor = page.Cursor
		}
		// 1 upload + 5 downloads.
		if total != 6 {
			t.Errorf("paged entries = %d, want 6", total)
		}
	})

	t.Run("reading history requires read permission", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		root := env.mustRoot(t, alice)
		file, _ := env.mustUpload(t, alice, root.ID, "private.txt", "x")

		_, err := env.eng.History(ctx, bob, engine.FileRef(file.ID), time.Time{}, env.clock.Now(), "", 10)
		if !errors.Is(err, engine.ErrDenied) {
			t.Errorf("History() by bob error = %v, want ErrDenied", err)
		}
	})
}

func TestEngine_Versions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.mustRoot(t, alice)

	file, _ := env.mustUpload(t, alice, root.ID, "evolving.txt", "one")
	env.mustUpload(t, alice, root.ID, "evolving.txt", "two")
	env.mustUpload(t, alice, root.ID, "evolving.txt", "three")

	versions, err := env.eng.Versions(ctx, alice, file.ID)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("got %d versions, want 3", len(versions))
	}
	for i, v := range versions {
		if v.Version != int64(i+1) {
			t.Errorf("versions[%d].Version = %d, want %d", i, v.Version, i+1)
		}
		if v.CreatedBy != alice.ID {
			t.Errorf("versions[%d].CreatedBy = %q, want %q", i, v.CreatedBy, alice.ID)
		}
	}
}

func TestEngine_Activity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.mustRoot(t, alice)
	file, _ := env.mustUpload(t, alice, root.ID, "counted.txt", "v1")
	env.mustDownload(t, alice, file.ID)
	env.mustDownload(t, alice, file.ID)

	t.Run("admin only", func(t *testing.T) {
		if _, err := env.eng.Activity(ctx, alice, time.Time{}, env.clock.Now()); !errors.Is(err, engine.ErrDenied) {
			t.Errorf("Activity() by member error = %v, want ErrDenied", err)
		}
	})

	t.Run("buckets by actor, action and day", func(t *testing.T) {
		buckets, err := env.eng.Activity(ctx, admin, time.Time{}, env.clock.Now())
		if err != nil {
			t.Fatalf("Activity() error = %v", err)
		}

		day := env.clock.Now().UTC().Format("2006-01-02")
		var downloads *engine.ActivityBucket
		for i := range buckets {
			if buckets[i].Actor == alice.ID && buckets[i].Action == "download" {
				downloads = &buckets[i]
			}
		}
		if downloads == nil {
			t.Fatal("no download bucket for alice")
		}
		if downloads.Count != 2 {
			t.Errorf("download count = %d, want 2", downloads.Count)
		}
		if downloads.Day != day {
			t.Errorf("bucket day = %q, want %q", downloads.Day, day)
		}
	})
}

// noopWriter swallows writes; used where downloaded bytes are irrelevant.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
