// Package legacy decodes the encrypted _metaData blob older clients attach to
// leave requests. The blob names the subscription kind the room was registered
// under so the server can drop it together with the room membership.
package legacy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "beacon-metadata-v1"

var (
	ErrMalformed = errors.New("malformed metadata")
	ErrNoKey     = errors.New("metadata key not configured")
)

// Metadata is the decrypted payload.
type Metadata struct {
	Model string `json:"model"`
}

// Codec seals and opens metadata with XChaCha20-Poly1305. The AEAD key is
// derived from the configured secret with HKDF-SHA256.
type Codec struct {
	secret []byte
}

// New returns a Codec for secret. An empty secret yields a Codec whose Open
// always fails with ErrNoKey.
func New(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

func (c *Codec) Enabled() bool {
	return c != nil && len(c.secret) > 0
}

func (c *Codec) aead() (cipherAEAD, error) {
	if !c.Enabled() {
		return nil, ErrNoKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive metadata key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

// Seal encrypts m as base64url(nonce || ciphertext).
func (c *Codec) Seal(m Metadata) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	plain, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(aead.Seal(nonce, nonce, plain, nil)), nil
}

// Open reverses Seal. Padded, unpadded, standard and URL base64 are accepted.
func (c *Codec) Open(blob string) (Metadata, error) {
	aead, err := c.aead()
	if err != nil {
		return Metadata{}, err
	}
	raw, err := decodeBase64(strings.TrimSpace(blob))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return Metadata{}, fmt.Errorf("%w: too short", ErrMalformed)
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var m Metadata
	if err := json.Unmarshal(plain, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m.Model = strings.TrimSpace(m.Model)
	return m, nil
}

type cipherAEAD interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
