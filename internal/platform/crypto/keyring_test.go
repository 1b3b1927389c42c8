package crypto

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeyringExplicitKeyWins(t *testing.T) {
	hexKey := strings.Repeat("ab", KeySize)
	keyFile := filepath.Join(t.TempDir(), "encryption.key")

	k := NewKeyring(hexKey, keyFile)
	key, err := k.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if hex.EncodeToString(key) != hexKey {
		t.Errorf("got key %x, want %s", key, hexKey)
	}

	// The explicit key must not touch the key file.
	if _, err := os.Stat(keyFile); !os.IsNotExist(err) {
		t.Errorf("key file was created despite explicit key: %v", err)
	}
}

func TestKeyringRejectsBadExplicitKey(t *testing.T) {
	for _, hexKey := range []string{"zz", "abcd", strings.Repeat("ab", KeySize-1)} {
		k := NewKeyring(hexKey, filepath.Join(t.TempDir(), "encryption.key"))
		if _, err := k.Resolve(); err == nil {
			t.Errorf("Resolve(%q): expected error", hexKey)
		}
	}
}

func TestKeyringGeneratesAndPersistsOnce(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "encryption.key")
	k := NewKeyring("", keyFile)

	first, err := k.Resolve()
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	if len(first) != KeySize {
		t.Fatalf("generated key is %d bytes, want %d", len(first), KeySize)
	}

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("key file was not persisted: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file permissions are %o, want 600", perm)
	}

	second, err := k.Resolve()
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("second Resolve returned a different key; the file was not reused")
	}
}

func TestKeyringCorruptFileIsFatal(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "encryption.key")
	if err := os.WriteFile(keyFile, []byte("not hex at all"), 0o600); err != nil {
		t.Fatal(err)
	}

	k := NewKeyring("", keyFile)
	if _, err := k.Resolve(); err == nil {
		t.Fatal("expected Resolve to fail on a corrupt key file")
	}
}

func TestKeyringReset(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "encryption.key")
	k := NewKeyring("", keyFile)

	old, err := k.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	fresh, err := k.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if bytes.Equal(old, fresh) {
		t.Error("Reset returned the old key")
	}

	resolved, err := k.Resolve()
	if err != nil {
		t.Fatalf("Resolve after Reset failed: %v", err)
	}
	if !bytes.Equal(fresh, resolved) {
		t.Error("Resolve after Reset did not return the persisted fresh key")
	}
}
