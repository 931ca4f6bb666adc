package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"strongbox/internal/engine"
)

const (
	keyLen   = 32 // AES-256
	nonceLen = 12 // standard GCM nonce
)

// AESSealer implements engine.Sealer with zstd compression followed by
// AES-256-GCM. The sealed layout is nonce || ciphertext; the GCM tag rides
// inside the ciphertext and is verified before any plaintext is produced.
//
// Compression happens before encryption — ciphertext does not compress.
type AESSealer struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewAESSealer creates a sealer with shared zstd coders.
// EncodeAll/DecodeAll are safe for concurrent use, so one sealer serves all
// engine workers.
func NewAESSealer() (*AESSealer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &AESSealer{enc: enc, dec: dec}, nil
}

// GenerateKey returns a fresh random 256-bit data key.
func (s *AESSealer) GenerateKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// Seal compresses and encrypts plaintext under key with a fresh random
// nonce. Keys are single-use (one per file version), so the random nonce
// never repeats under the same key.
func (s *AESSealer) Seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	compressed := s.enc.EncodeAll(plaintext, nil)
	return gcm.Seal(nonce, nonce, compressed, nil), nil
}

// Open authenticates and decrypts sealed data, then decompresses.
// A failed tag check returns ErrIntegrity and no plaintext.
func (s *AESSealer) Open(sealed, key []byte) ([]byte, error) {
	if len(sealed) < nonceLen {
		return nil, fmt.Errorf("sealed data too short: %w", engine.ErrIntegrity)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	compressed, err := gcm.Open(nil, sealed[:nonceLen], sealed[nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", engine.ErrIntegrity)
	}

	plaintext, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		// The tag already verified, so a decompression failure means the
		// sealer itself wrote something wrong. Still integrity, not transient.
		return nil, fmt.Errorf("decompressing content: %w", engine.ErrIntegrity)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// Compile-time check that AESSealer implements engine.Sealer.
var _ engine.Sealer = (*AESSealer)(nil)
