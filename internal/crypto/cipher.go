// Package crypto provides the credential cipher: AES-256-GCM encryption of
// bearer and refresh tokens for storage at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/logger"
)

// Cipher encrypts and decrypts credential material with AES-256-GCM. The key
// is derived once at startup and held for process lifetime; there is no key
// rotation support.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from configuration. The configured key must be a
// base64-encoded 32-byte value. A key of any other shape is rejected unless
// AllowDerivedKey is set, in which case it is stretched through SHA-256 and a
// warning is logged so operators know the configuration is weak.
func New(cfg config.CipherConfig) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil || len(key) != 32 {
		if !cfg.AllowDerivedKey {
			return nil, errors.Wrap(errors.ErrCipherKeyInvalid,
				"cipher.key must be a base64-encoded 32-byte key (set cipher.allow_derived_key to stretch an arbitrary secret)")
		}
		logger.Warn("cipher key is not a generated 32-byte key; deriving one via SHA-256",
			logger.String("hint", "generate a proper key and set cipher.key"))
		sum := sha256.Sum256([]byte(cfg.Key))
		key = sum[:]
	}
	return NewWithKey(key)
}

// NewWithKey creates a Cipher from a raw 32-byte key.
func NewWithKey(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, errors.ErrCipherKeyInvalid
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns base64-encoded ciphertext with the
// nonce prepended.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext. Tampered or wrong-key input
// fails closed with a cipher error; corrupted plaintext is never returned.
func (c *Cipher) Decrypt(ciphertextB64 string) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", errors.CipherError(fmt.Errorf("failed to decode base64: %w", err))
	}

	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.CipherError(errors.ErrDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.CipherError(errors.ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// GenerateKey generates a random 32-byte key and returns it as base64, in the
// shape config.CipherConfig.Key expects.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
