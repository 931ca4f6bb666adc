package engine

// Sealer handles content encryption. Every file version is sealed with a
// freshly generated data key; the key never encrypts two payloads.
type Sealer interface {
	// GenerateKey returns a new random 256-bit data key.
	GenerateKey() ([]byte, error)

	// Seal compresses and encrypts plaintext under key. Each call uses a
	// fresh random nonce; the result carries the nonce and an integrity tag.
	Seal(plaintext, key []byte) ([]byte, error)

	// Open authenticates and decrypts sealed data. The integrity tag is
	// verified before any plaintext is produced; a mismatch returns
	// ErrIntegrity and never partial output.
	Open(sealed, key []byte) ([]byte, error)
}

// Keyring manages per-owner master keys and the wrapping of data keys under
// them. Master keys live in an encrypted keyring file; compromise of the
// catalog alone therefore exposes only wrapped keys.
type Keyring interface {
	// Wrap encrypts a data key under the owner's current master key,
	// creating the master key on first use.
	Wrap(ownerID string, key []byte) ([]byte, error)

	// Unwrap decrypts a wrapped data key. Works for any master key
	// generation the keyring still holds.
	Unwrap(ownerID string, wrapped []byte) ([]byte, error)

	// Rotate generates a new master key generation for the owner. Existing
	// generations are kept until DropRetired so previously wrapped keys
	// remain unwrappable during rewrapping.
	Rotate(ownerID string) error

	// DropRetired discards all but the current master key generation.
	// Call only after every wrapped key has been rewrapped.
	DropRetired(ownerID string) error
}
