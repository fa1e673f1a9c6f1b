// Package crypto seals credential secrets at rest.
// This is part of the Functional Core - all functions are pure with no I/O
// apart from reading the system random source for nonces.
//
// Secrets are sealed with AES-256-GCM. The key is derived from the server's
// configured passphrase with HKDF-SHA256, and each ciphertext is bound to the
// record it belongs to through the additional authenticated data.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	// ErrEmptyPassphrase is returned when no passphrase is configured.
	ErrEmptyPassphrase = errors.New("encryption passphrase is empty")

	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when the sealed value is truncated.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned for a wrong key, wrong record binding or
	// corrupted data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// hkdfInfo scopes derived keys to credential sealing.
var hkdfInfo = []byte("fnhost credential secrets v1")

// DeriveKey derives a 32-byte key from a passphrase. The derivation is
// deterministic so the same passphrase opens previously sealed values.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) < KeySize {
		return nil, ErrKeyTooShort
	}

	block, err := aes.NewCipher(key[:KeySize])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext and binds it to recordID.
//
// The output format is: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
func Seal(plaintext, key []byte, recordID string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, []byte(recordID)), nil
}

// Open decrypts a value produced by Seal for the same recordID.
func Open(sealed, key []byte, recordID string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize+gcm.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(recordID))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
