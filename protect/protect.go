// Package protect provides reversible protection for personal-data fields.
// The mapping layer runs protected fields through a Protector on the way in
// and out of the database; store code always sees plaintext.
package protect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Protector transforms a field value to and from its stored form.
type Protector interface {
	Protect(value string) (string, error)
	Unprotect(value string) (string, error)
}

// Noop passes values through unchanged.
type Noop struct{}

func (Noop) Protect(value string) (string, error) { return value, nil }

func (Noop) Unprotect(value string) (string, error) { return value, nil }

// AES protects values with AES-256-GCM. Stored form is
// base64(nonce || ciphertext).
type AES struct {
	aead cipher.AEAD
}

// NewAES creates an AES protector. The key must be 32 bytes.
func NewAES(key []byte) (*AES, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("protection key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}
	return &AES{aead: aead}, nil
}

func (p *AES) Protect(value string) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := p.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (p *AES) Unprotect(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("failed to decode protected value: %w", err)
	}
	if len(raw) < p.aead.NonceSize() {
		return "", fmt.Errorf("protected value too short")
	}
	nonce, sealed := raw[:p.aead.NonceSize()], raw[p.aead.NonceSize():]
	plain, err := p.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unprotect value: %w", err)
	}
	return string(plain), nil
}
