// Package crypto encrypts ERP credentials at rest.
//
// Ciphertexts are base64(iv || tag || ciphertext) with a 16 byte IV and a
// 16 byte GCM tag, under a 256 bit key given as 64 hex characters.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

var (
	ErrInvalidKey        = errors.New("password key must be 64 hex characters")
	ErrMalformedCipher   = errors.New("malformed encrypted value")
	ErrDecryptionFailure = errors.New("encrypted value could not be authenticated")
)

// CredentialCipher encrypts and decrypts stored ERP passwords
type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher builds a cipher from a hex encoded AES-256 key
func NewCredentialCipher(hexKey string) (*CredentialCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &CredentialCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV
func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, ivSize+tagSize+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt
func (c *CredentialCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < ivSize+tagSize {
		return "", ErrMalformedCipher
	}
	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ct := raw[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailure
	}
	return string(plain), nil
}

// GenerateKey returns a random key suitable for SYNC_PASSWORD_KEY
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
