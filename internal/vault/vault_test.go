package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mtzanidakis/hive/internal/policy"
)

func TestRoundTrip(t *testing.T) {
	v := New("test-passphrase")
	plaintext := []byte("hello, vault!")

	ciphertext, nonce, err := v.Encrypt(plaintext, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	decrypted, err := v.Decrypt(ciphertext, nonce, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("got %q, want %q", decrypted, plaintext)
	}
}

func TestWrongPassphrase(t *testing.T) {
	v1 := New("correct-passphrase")
	v2 := New("wrong-passphrase")

	ciphertext, nonce, err := v1.Encrypt([]byte("secret"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := v2.Decrypt(ciphertext, nonce, nil); err == nil {
		t.Fatal("expected error decrypting with wrong passphrase")
	}
}

func TestDifferentPassphrasesDifferentKeys(t *testing.T) {
	v1 := New("passphrase-one")
	v2 := New("passphrase-two")

	if v1.key == v2.key {
		t.Fatal("different passphrases produced the same key")
	}
}

func TestSanitizeUnseal(t *testing.T) {
	v := New("test")
	value := map[string]any{"card": "4111-1111", "limit": float64(500)}

	out, err := v.Sanitize(value, policy.SensitivityFinancial)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	sealed, ok := out.(string)
	if !ok || !IsSealed(sealed) {
		t.Fatalf("expected sealed string, got %v", out)
	}
	if strings.Contains(sealed, "4111") {
		t.Fatal("sealed value leaks plaintext")
	}

	back, err := v.Unseal(sealed, policy.SensitivityFinancial)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	m, ok := back.(map[string]any)
	if !ok || m["card"] != "4111-1111" || m["limit"] != float64(500) {
		t.Errorf("unexpected unsealed value %v", back)
	}
}

func TestSanitizeIsRandomized(t *testing.T) {
	v := New("test")
	a, _ := v.Sanitize("ssn", policy.SensitivityPII)
	b, _ := v.Sanitize("ssn", policy.SensitivityPII)
	if a == b {
		t.Error("expected distinct nonces per seal")
	}
}

func TestUnsealWrongSensitivity(t *testing.T) {
	v := New("test")
	out, _ := v.Sanitize("token", policy.SensitivityCredential)
	if _, err := v.Unseal(out.(string), policy.SensitivityPII); err == nil {
		t.Fatal("expected error when sensitivity does not match")
	}
}

func TestUnsealRejectsPlainValues(t *testing.T) {
	v := New("test")
	if _, err := v.Unseal("plain", policy.SensitivityPII); !errors.Is(err, ErrNotSealed) {
		t.Errorf("expected ErrNotSealed, got %v", err)
	}
	if _, err := v.Unseal(SealedPrefix+"nocolon", policy.SensitivityPII); !errors.Is(err, ErrNotSealed) {
		t.Errorf("expected ErrNotSealed for malformed value, got %v", err)
	}
}

func TestSanitizeNil(t *testing.T) {
	v := New("test")
	out, err := v.Sanitize(nil, policy.SensitivityPII)
	if err != nil || out != nil {
		t.Errorf("expected nil passthrough, got %v %v", out, err)
	}
}
