// Package crypto holds the encryption key lifecycle and the field cipher used
// for PII columns. The key is resolved once at startup and must remain stable
// across restarts: losing it makes all previously encrypted data permanently
// unrecoverable.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Keyring resolves and persists the process-wide symmetric key.
type Keyring struct {
	hexKey  string // explicit key material from the environment, may be empty
	keyFile string // fallback key file path
}

func NewKeyring(hexKey, keyFile string) *Keyring {
	return &Keyring{hexKey: hexKey, keyFile: keyFile}
}

// Resolve returns the symmetric key, in order of preference:
//  1. explicit hex key material supplied through configuration
//  2. a previously persisted key file, read and reused as-is
//  3. a freshly generated key, persisted to the key file before first use
//
// A key file that exists but cannot be read or decoded is fatal: there is no
// recovery path other than an operator-driven reset.
func (k *Keyring) Resolve() ([]byte, error) {
	if k.hexKey != "" {
		key, err := decodeKey(k.hexKey)
		if err != nil {
			return nil, fmt.Errorf("keyring: ENCRYPTION_KEY: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(k.keyFile)
	if err == nil {
		key, derr := decodeKey(strings.TrimSpace(string(data)))
		if derr != nil {
			return nil, fmt.Errorf("keyring: key file %s is corrupt: %w", k.keyFile, derr)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keyring: read key file %s: %w", k.keyFile, err)
	}

	return k.generateAndPersist()
}

// generateAndPersist creates a fresh key and writes it to the key file. The
// write uses O_EXCL so an existing key file is never overwritten, even when
// two processes race on first start.
func (k *Keyring) generateAndPersist() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keyring: generate key: %w", err)
	}

	f, err := os.OpenFile(k.keyFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			// Another process won the race; reuse its key.
			return k.Resolve()
		}
		return nil, fmt.Errorf("keyring: create key file %s: %w", k.keyFile, err)
	}

	if _, err := f.WriteString(hex.EncodeToString(key)); err != nil {
		f.Close()
		return nil, fmt.Errorf("keyring: write key file %s: %w", k.keyFile, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("keyring: close key file %s: %w", k.keyFile, err)
	}

	return key, nil
}

// Reset replaces the key file with a freshly generated key and returns the new
// key. All data encrypted under the previous key becomes unreadable; callers
// are responsible for destroying it first. Operator use only.
func (k *Keyring) Reset() ([]byte, error) {
	if err := os.Remove(k.keyFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("keyring: remove key file %s: %w", k.keyFile, err)
	}
	return k.generateAndPersist()
}

func decodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
