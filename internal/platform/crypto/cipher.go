package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// DecryptionError reports ciphertext that cannot be opened under the current
// key: produced under a different key, truncated, or tampered with. It is
// unrecoverable for the operation that hit it but never fatal for the process.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// FieldCipher provides AES-256-GCM encryption and decryption for individual
// PII values. Encryption is randomized: a fresh nonce is drawn per call and
// prepended to the ciphertext, so two encryptions of the same plaintext never
// compare equal.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher creates a FieldCipher with the given 32-byte AES-256 key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("field cipher: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create GCM: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// Encrypt encrypts the plaintext and returns the nonce prepended to the
// ciphertext.
func (c *FieldCipher) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("field cipher: generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt extracts the nonce from the front of data and decrypts the
// remainder. Any authentication failure surfaces as a *DecryptionError.
func (c *FieldCipher) Decrypt(data []byte) (string, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", &DecryptionError{Err: fmt.Errorf("ciphertext too short")}
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return string(plaintext), nil
}

// EncryptOptional encrypts an optional value; nil passes through unchanged.
func (c *FieldCipher) EncryptOptional(plaintext *string) ([]byte, error) {
	if plaintext == nil {
		return nil, nil
	}
	return c.Encrypt(*plaintext)
}

// DecryptOptional decrypts an optional value; nil passes through unchanged.
func (c *FieldCipher) DecryptOptional(data []byte) (*string, error) {
	if data == nil {
		return nil, nil
	}
	plaintext, err := c.Decrypt(data)
	if err != nil {
		return nil, err
	}
	return &plaintext, nil
}
