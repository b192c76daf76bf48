package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SecretSealer = (*Sealer)(nil)

const (
	// blobVersion prefixes every sealed blob so the format can change later
	blobVersion = 0x01

	nonceSize = 12
	keySize   = 32

	// hkdfInfo binds derived keys to this use
	hkdfInfo = "agrolink-core cloud config v1"
)

// hkdfSalt is fixed so the same passphrase always derives the same key
var hkdfSalt = []byte("agrolink-core/secrets")

var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrEmptyPassphrase is returned when no passphrase is given
	ErrEmptyPassphrase = errors.New("encryption passphrase is empty")

	// ErrInvalidBlobSize is returned when the blob is shorter than version+nonce+tag
	ErrInvalidBlobSize = errors.New("sealed blob is too small")

	// ErrUnsupportedVersion is returned for an unknown version byte
	ErrUnsupportedVersion = errors.New("unsupported sealed blob version")

	// ErrDecryptionFailed means the key is wrong or the blob was tampered with
	ErrDecryptionFailed = errors.New("failed to open sealed blob")
)

// Sealer encrypts with AES-256-GCM.
// Blob layout: version(1) || nonce(12) || ciphertext+tag
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a raw 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// NewSealerFromPassphrase derives the AES key from an operator-supplied
// passphrase with HKDF-SHA256.
func NewSealerFromPassphrase(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key, err := deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

func deriveKey(passphrase string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(passphrase), hkdfSalt, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+s.gcm.Overhead())
	blob[0] = blobVersion
	copy(blob[1:], nonce)
	return s.gcm.Seal(blob, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	if len(blob) < 1+nonceSize+s.gcm.Overhead() {
		return nil, ErrInvalidBlobSize
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	plaintext, err := s.gcm.Open(nil, nonce, blob[1+nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
