package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"strongbox/internal/engine"
)

// FileKeyring implements engine.Keyring with per-owner master keys kept in a
// single file, encrypted with an age scrypt passphrase recipient. The file
// never holds plaintext keys at rest; the decrypted keyring lives in memory
// only for the duration of the session.
//
// Wrapped data keys carry a 4-byte master key generation prefix so rotation
// can unwrap under the old generation while wrapping under the new one:
//
//	gen (4 bytes, big endian) || nonce (12 bytes) || AES-256-GCM ciphertext
//
// The owner ID is bound as GCM additional data, so a wrapped key pasted onto
// another owner's version fails to unwrap.
type FileKeyring struct {
	path string

	mu         sync.Mutex
	passphrase string
	owners     map[string][]ownerKey // generations ascending; last is current
	unlocked   bool
}

type ownerKey struct {
	Generation uint32 `json:"generation"`
	Key        string `json:"key"` // base64
}

// NewFileKeyring creates a keyring handle for the given path.
// Call Setup once to create the file, then Unlock each session.
func NewFileKeyring(path string) *FileKeyring {
	return &FileKeyring{path: path, owners: make(map[string][]ownerKey)}
}

// IsConfigured returns true if the keyring file exists.
func (k *FileKeyring) IsConfigured() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// Setup creates an empty keyring encrypted with the passphrase.
// Fails if the keyring file already exists.
func (k *FileKeyring) Setup(passphrase string) error {
	if k.IsConfigured() {
		return fmt.Errorf("keyring already exists at %s", k.path)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return fmt.Errorf("creating keyring directory: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.passphrase = passphrase
	k.owners = make(map[string][]ownerKey)
	k.unlocked = true
	return k.save()
}

// Unlock decrypts the keyring with the passphrase and holds it in memory.
// Returns an error if the passphrase is incorrect.
func (k *FileKeyring) Unlock(passphrase string) error {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("reading keyring file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return fmt.Errorf("unlocking keyring (wrong passphrase?): %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading keyring: %w", err)
	}

	owners := make(map[string][]ownerKey)
	if err := json.Unmarshal(plain, &owners); err != nil {
		return fmt.Errorf("parsing keyring: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.passphrase = passphrase
	k.owners = owners
	k.unlocked = true
	return nil
}

// save writes the keyring atomically. Caller holds k.mu.
func (k *FileKeyring) save() error {
	plain, err := json.Marshal(k.owners)
	if err != nil {
		return fmt.Errorf("encoding keyring: %w", err)
	}

	recipient, err := age.NewScryptRecipient(k.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("encrypting keyring: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing keyring: %w", err)
	}

	tmp := k.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	if err := os.Rename(tmp, k.path); err != nil {
		return fmt.Errorf("committing keyring: %w", err)
	}
	return nil
}

// current returns the owner's current master key, creating generation 1 on
// first use. Caller holds k.mu.
func (k *FileKeyring) current(ownerID string) (uint32, []byte, error) {
	keys := k.owners[ownerID]
	if len(keys) == 0 {
		raw := make([]byte, keyLen)
		if _, err := rand.Read(raw); err != nil {
			return 0, nil, fmt.Errorf("generating master key: %w", err)
		}
		k.owners[ownerID] = []ownerKey{{Generation: 1, Key: base64.StdEncoding.EncodeToString(raw)}}
		if err := k.save(); err != nil {
			return 0, nil, err
		}
		return 1, raw, nil
	}

	cur := keys[len(keys)-1]
	raw, err := base64.StdEncoding.DecodeString(cur.Key)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding master key: %w", err)
	}
	return cur.Generation, raw, nil
}

// Wrap encrypts a data key under the owner's current master key.
func (k *FileKeyring) Wrap(ownerID string, key []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.unlocked {
		return nil, fmt.Errorf("keyring is locked")
	}

	gen, master, err := k.current(ownerID)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(master)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 4, 4+nonceLen+len(key)+gcm.Overhead())
	binary.BigEndian.PutUint32(out, gen)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, key, []byte(ownerID)), nil
}

// Unwrap decrypts a wrapped data key under whichever master key generation
// wrapped it.
func (k *FileKeyring) Unwrap(ownerID string, wrapped []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.unlocked {
		return nil, fmt.Errorf("keyring is locked")
	}
	if len(wrapped) < 4+nonceLen {
		return nil, fmt.Errorf("wrapped key too short: %w", engine.ErrIntegrity)
	}

	gen := binary.BigEndian.Uint32(wrapped)
	var master []byte
	for _, ok := range k.owners[ownerID] {
		if ok.Generation == gen {
			raw, err := base64.StdEncoding.DecodeString(ok.Key)
			if err != nil {
				return nil, fmt.Errorf("decoding master key: %w", err)
			}
			master = raw
			break
		}
	}
	if master == nil {
		return nil, fmt.Errorf("no master key generation %d for owner %s", gen, ownerID)
	}

	gcm, err := newGCM(master)
	if err != nil {
		return nil, err
	}

	nonce := wrapped[4 : 4+nonceLen]
	key, err := gcm.Open(nil, nonce, wrapped[4+nonceLen:], []byte(ownerID))
	if err != nil {
		return nil, fmt.Errorf("unwrapping key: %w", engine.ErrIntegrity)
	}
	return key, nil
}

// Rotate adds a new master key generation for the owner. Older generations
// stay until DropRetired so existing wrapped keys remain readable while the
// caller rewraps them.
func (k *FileKeyring) Rotate(ownerID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.unlocked {
		return fmt.Errorf("keyring is locked")
	}

	keys := k.owners[ownerID]
	var next uint32 = 1
	if len(keys) > 0 {
		next = keys[len(keys)-1].Generation + 1
	}

	raw := make([]byte, keyLen)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating master key: %w", err)
	}
	k.owners[ownerID] = append(keys, ownerKey{Generation: next, Key: base64.StdEncoding.EncodeToString(raw)})
	return k.save()
}

// DropRetired discards all but the current generation for the owner.
func (k *FileKeyring) DropRetired(ownerID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.unlocked {
		return fmt.Errorf("keyring is locked")
	}

	keys := k.owners[ownerID]
	if len(keys) <= 1 {
		return nil
	}
	k.owners[ownerID] = keys[len(keys)-1:]
	return k.save()
}

// Compile-time check that FileKeyring implements engine.Keyring.
var _ engine.Keyring = (*FileKeyring)(nil)
