package engine_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"strongbox/internal/blob"
	"strongbox/internal/crypto"
	"strongbox/internal/engine"
	"strongbox/internal/testutil"
)

var (
	alice = engine.Actor{ID: "alice", Role: engine.RoleMember}
	bob   = engine.Actor{ID: "bob", Role: engine.RoleMember}
	admin = engine.Actor{ID: "root", Role: engine.RoleAdmin}
	guest = engine.Actor{ID: "visitor", Role: engine.RoleGuest}
)

// testEnv bundles an engine with the fakes behind it so tests can reach
// around the API to inspect or corrupt state.
type testEnv struct {
	eng     *engine.Engine
	catalog engine.Catalog
	store   *blob.MemoryStore
	clock   *testutil.StubClock
	keyring *crypto.FileKeyring
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat := testutil.NewTestCatalog(t)
	store := testutil.NewTestStore()
	sealer := testutil.NewTestSealer(t)
	keyring := testutil.NewTestKeyring(t)
	clock := testutil.FixedClock()

	eng := engine.NewEngine(cat, store, sealer, keyring, engine.NewNopLogger(),
		clock, testutil.NewStubIDGenerator(), testutil.NewStubTokenSource())
	eng.SetRetryDelay(0)

	return &testEnv{eng: eng, catalog: cat, store: store, clock: clock, keyring: keyring}
}

// mustRoot creates (or returns) the actor's root folder.
func (env *testEnv) mustRoot(t *testing.T, actor engine.Actor) *engine.Folder {
	t.Helper()
	root, err := env.eng.EnsureRoot(context.Background(), actor)
	if err != nil {
		t.Fatalf("EnsureRoot() error = %v", err)
	}
	return root
}

// mustUpload stores content under name in the folder and returns the file.
func (env *testEnv) mustUpload(t *testing.T, actor engine.Actor, folderID, name, content string) (*engine.File, *engine.FileVersion) {
	t.Helper()
	file, version, err := env.eng.Upload(context.Background(), actor, folderID, name, "text/plain", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Upload(%s) error = %v", name, err)
	}
	return file, version
}

// mustDownload fetches the current version's plaintext.
func (env *testEnv) mustDownload(t *testing.T, actor engine.Actor, fileID string) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := env.eng.Download(context.Background(), actor, fileID, &buf); err != nil {
		t.Fatalf("Download(%s) error = %v", fileID, err)
	}
	return buf.String()
}
