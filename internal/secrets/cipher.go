package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKey = errors.New("secrets: invalid encryption key")
	ErrDecrypt    = errors.New("secrets: decryption failed")
)

// Cipher seals short values with AES-256-GCM. Output is base64 of nonce||ciphertext.
// The associated data binds a ciphertext to its owner, so a value copied to
// another tenant's row will not open.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher takes a base64-encoded 32-byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("%w: encryption key is required", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode encryption key: %v", ErrInvalidKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: encryption key must be 32 bytes (256 bits), got %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: gcm}, nil
}

// GenerateKey returns a fresh base64-encoded key for NewCipher.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (c *Cipher) Encrypt(plaintext, associated string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associated))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded, associated string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], []byte(associated))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}
