package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(t *testing.T, fill byte) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = fill
	}
	return key
}

func TestFieldCipherRoundTrip(t *testing.T) {
	c, err := NewFieldCipher(testKey(t, 0x42))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}

	for _, plaintext := range []string{"", "Maria Garcia", "12345678-9", "ünïcode ñame"} {
		ct, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plaintext, err)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip: got %q, want %q", got, plaintext)
		}
	}
}

func TestFieldCipherRandomized(t *testing.T) {
	c, err := NewFieldCipher(testKey(t, 0x42))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}

	a, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced equal ciphertext")
	}
}

func TestFieldCipherWrongKey(t *testing.T) {
	c1, err := NewFieldCipher(testKey(t, 0x01))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}
	c2, err := NewFieldCipher(testKey(t, 0x02))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}

	ct, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = c2.Decrypt(ct)
	if err == nil {
		t.Fatal("expected decryption under wrong key to fail")
	}
	var dErr *DecryptionError
	if !errors.As(err, &dErr) {
		t.Errorf("expected *DecryptionError, got %T: %v", err, err)
	}
}

func TestFieldCipherTruncatedCiphertext(t *testing.T) {
	c, err := NewFieldCipher(testKey(t, 0x42))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}

	ct, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	for _, data := range [][]byte{nil, ct[:3], ct[:len(ct)-1]} {
		_, err := c.Decrypt(data)
		var dErr *DecryptionError
		if !errors.As(err, &dErr) {
			t.Errorf("Decrypt(%d bytes): expected *DecryptionError, got %v", len(data), err)
		}
	}
}

func TestFieldCipherTamperedCiphertext(t *testing.T) {
	c, err := NewFieldCipher(testKey(t, 0x42))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}

	ct, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	ct[len(ct)-1] ^= 0xff

	_, err = c.Decrypt(ct)
	var dErr *DecryptionError
	if !errors.As(err, &dErr) {
		t.Errorf("expected *DecryptionError for tampered ciphertext, got %v", err)
	}
}

func TestFieldCipherOptional(t *testing.T) {
	c, err := NewFieldCipher(testKey(t, 0x42))
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}

	ct, err := c.EncryptOptional(nil)
	if err != nil || ct != nil {
		t.Errorf("EncryptOptional(nil): got (%v, %v), want (nil, nil)", ct, err)
	}
	pt, err := c.DecryptOptional(nil)
	if err != nil || pt != nil {
		t.Errorf("DecryptOptional(nil): got (%v, %v), want (nil, nil)", pt, err)
	}

	phone := "+1-555-0100"
	ct, err = c.EncryptOptional(&phone)
	if err != nil {
		t.Fatalf("EncryptOptional failed: %v", err)
	}
	pt, err = c.DecryptOptional(ct)
	if err != nil {
		t.Fatalf("DecryptOptional failed: %v", err)
	}
	if pt == nil || *pt != phone {
		t.Errorf("optional round trip: got %v, want %q", pt, phone)
	}
}

func TestNewFieldCipherRejectsBadKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33} {
		if _, err := NewFieldCipher(make([]byte, size)); err == nil {
			t.Errorf("expected error for %d-byte key", size)
		}
	}
}
