package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
)

// EncryptionKeyEnv is the environment fallback for the token cipher key.
// The value may be base64 of 32 raw bytes, or any passphrase which is then
// stretched with scrypt.
const EncryptionKeyEnv = "CROSSPOST_ENCRYPTION_KEY"

// scrypt parameters for passphrase stretching. The salt is fixed because the
// derivation must be deterministic across restarts; the passphrase itself is
// the secret.
var keySalt = []byte("crosspost-token-cipher-v1")

// tokenCipher encrypts token payloads with AES-256-GCM before they reach
// SecureStorage. Losing the key makes persisted tokens permanently
// undecryptable, which forces re-authentication; that is accepted, not
// masked.
type tokenCipher struct {
	aead cipher.AEAD
}

func newTokenCipher(key []byte) (*tokenCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &tokenCipher{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce prepended to the ciphertext.
func (c *tokenCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed ciphertext. Corrupted input maps to
// ErrCiphertextCorrupted so the caller can force re-authentication for the
// affected token without crashing.
func (c *tokenCipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errorx.ErrCiphertextCorrupted
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errorx.ErrCiphertextCorrupted
	}
	return plaintext, nil
}

// loadOrCreateKey returns the 32-byte cipher key. Priority: existing key
// file, then the environment variable, then a freshly generated key
// persisted with owner-only permissions.
func loadOrCreateKey(logger *zap.Logger, keyFile string) ([]byte, error) {
	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
		logger.Warn("encryption key file unreadable, falling back",
			zap.String("file", keyFile))
	}

	if env := os.Getenv(EncryptionKeyEnv); env != "" {
		if key, err := base64.StdEncoding.DecodeString(env); err == nil && len(key) == 32 {
			return key, nil
		}
		// treat as passphrase
		derived, err := scrypt.Key([]byte(env), keySalt, 1<<15, 8, 1, 32)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
		return derived, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("persist encryption key to %s: %w", keyFile, err)
	}
	return key, nil
}
