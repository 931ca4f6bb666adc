package testutil

import (
	"path/filepath"
	"testing"

	"strongbox/internal/crypto"
)

// TestPassphrase protects keyrings created by NewTestKeyring.
const TestPassphrase = "test-passphrase"

// NewTestSealer creates an AES sealer for testing.
func NewTestSealer(t *testing.T) *crypto.AESSealer {
	t.Helper()

	sealer, err := crypto.NewAESSealer()
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}
	return sealer
}

// NewTestKeyring creates an unlocked keyring backed by a temp file.
func NewTestKeyring(t *testing.T) *crypto.FileKeyring {
	t.Helper()

	kr := crypto.NewFileKeyring(filepath.Join(t.TempDir(), "keyring.age"))
	if err := kr.Setup(TestPassphrase); err != nil {
		t.Fatalf("failed to set up keyring: %v", err)
	}
	return kr
}
