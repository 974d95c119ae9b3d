// Package sealed encrypts API keys with AES-256-GCM before they reach any
// CredentialStore. It decorates both the dialer and the stores it returns.
package sealed

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// KeySize is the required secret key length in bytes (AES-256).
const KeySize = 32

// Compile-time interface satisfaction checks.
var (
	_ driven.StoreDialer     = (*Dialer)(nil)
	_ driven.CredentialStore = (*Store)(nil)
)

// Dialer wraps every store returned by the inner dialer in a Store.
type Dialer struct {
	inner driven.StoreDialer
	aead  cipher.AEAD
}

// NewDialer returns a Dialer sealing with key, which must be KeySize bytes.
func NewDialer(inner driven.StoreDialer, key []byte) (*Dialer, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Dialer{inner: inner, aead: aead}, nil
}

// Dial dials the inner dialer and wraps the result.
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (driven.CredentialStore, error) {
	store, err := d.inner.Dial(ctx, endpoint, token)
	if err != nil {
		return nil, err
	}
	return &Store{inner: store, aead: d.aead}, nil
}

// Store seals the api key of every record before delegating the upsert.
type Store struct {
	inner driven.CredentialStore
	aead  cipher.AEAD
}

// Upsert replaces rec.APIKey with its sealed form and delegates.
func (s *Store) Upsert(ctx context.Context, rec model.CredentialRecord) (model.Confirmation, error) {
	sealed, err := seal(s.aead, rec.APIKey)
	if err != nil {
		return model.Confirmation{}, err
	}
	rec.APIKey = sealed
	return s.inner.Upsert(ctx, rec)
}

// Open decrypts a value produced by a Store sealed with key.
func Open(key []byte, encoded string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// seal returns base64(nonce || ciphertext || tag).
func seal(aead cipher.AEAD, plaintext string) (string, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}
