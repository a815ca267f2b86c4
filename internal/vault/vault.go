package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mtzanidakis/hive/internal/policy"
	"golang.org/x/crypto/argon2"
)

// SealedPrefix starts every sealed value.
const SealedPrefix = "sealed:v1:"

var ErrNotSealed = errors.New("value is not sealed")

// Vault seals sensitive values with AES-256-GCM under a passphrase-derived key.
type Vault struct {
	key [32]byte
}

// New derives the key from the passphrase via Argon2id. The salt is the
// SHA-256 of the passphrase so the key is stable across restarts.
func New(passphrase string) *Vault {
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	v := &Vault{}
	copy(v.key[:], key)
	return v
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext with a random nonce. additional is authenticated
// but not encrypted.
func (v *Vault) Encrypt(plaintext, additional []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nil, nonce, plaintext, additional), nonce, nil
}

func (v *Vault) Decrypt(ciphertext, nonce, additional []byte) ([]byte, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("decrypt: bad nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Sanitize seals value as sealed:v1:<nonce>:<ciphertext>. The JSON encoding
// of value is encrypted and the sensitivity type is bound as additional data.
// A nil value stays nil.
func (v *Vault) Sanitize(value any, sensitivity policy.SensitivityType) (any, error) {
	if value == nil {
		return nil, nil
	}
	plain, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	ct, nonce, err := v.Encrypt(plain, []byte(sensitivity))
	if err != nil {
		return nil, err
	}
	enc := base64.StdEncoding
	return SealedPrefix + enc.EncodeToString(nonce) + ":" + enc.EncodeToString(ct), nil
}

// Unseal reverses Sanitize. sensitivity must match the type used to seal.
func (v *Vault) Unseal(sealed string, sensitivity policy.SensitivityType) (any, error) {
	rest, ok := strings.CutPrefix(sealed, SealedPrefix)
	if !ok {
		return nil, ErrNotSealed
	}
	n, c, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("unseal: %w", ErrNotSealed)
	}
	nonce, err := base64.StdEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(c)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	plain, err := v.Decrypt(ct, nonce, []byte(sensitivity))
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(plain, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// IsSealed reports whether s looks like a sealed value.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, SealedPrefix)
}
