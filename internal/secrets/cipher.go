// Package secrets seals cookie values at rest and manages the key that seals them.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a value produced by GCM.Seal.
const SealedPrefix = "enc:v1:"

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// GCM seals values with AES-256-GCM and a random nonce per value.
type GCM struct {
	aead cipher.AEAD
}

// NewGCM builds a GCM cipher from a 32-byte key.
func NewGCM(key []byte) (*GCM, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &GCM{aead: aead}, nil
}

// Seal returns SealedPrefix followed by base64(nonce || ciphertext).
func (g *GCM) Seal(plaintext string) (string, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := g.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without SealedPrefix are returned unchanged so
// that plaintext records written before encryption was enabled stay readable.
func (g *GCM) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := g.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := g.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the sealed marker.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
