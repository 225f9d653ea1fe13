// Package seal encrypts feedback payloads before they are written to the
// ledger. The sealing key never sits in ordinary heap memory: it lives in a
// memguard Enclave and is only decrypted into a locked buffer for the
// duration of a single Seal or Open.
package seal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// Prefix marks ciphertext produced by this package.
const Prefix = "sealed:v1:"

// KeySize is the required sealing key length.
const KeySize = chacha20poly1305.KeySize

var (
	ErrKeySize   = fmt.Errorf("seal: key must be %d bytes", KeySize)
	ErrMalformed = errors.New("seal: malformed ciphertext")
	ErrOpen      = errors.New("seal: message authentication failed")
)

var encoding = base64.RawURLEncoding

// Box seals payloads with XChaCha20-Poly1305.
type Box struct {
	key *memguard.Enclave
}

// New moves key into an enclave. The caller's slice is wiped.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		memguard.WipeBytes(key)
		return nil, ErrKeySize
	}
	return &Box{key: memguard.NewEnclave(key)}, nil
}

// NewFromBase64 decodes a standard or URL base64 key.
func NewFromBase64(s string) (*Box, error) {
	s = strings.TrimSpace(s)
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("seal: decode key: %w", err)
		}
	}
	return New(key)
}

// GenerateKey returns a random key encoded for FEEDBACK_SEAL_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("seal: generate key: %w", err)
	}
	defer memguard.WipeBytes(key)
	return base64.StdEncoding.EncodeToString(key), nil
}

func (b *Box) withKey(fn func(key []byte) error) error {
	buf, err := b.key.Open()
	if err != nil {
		return fmt.Errorf("seal: open key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Seal encrypts plaintext. Every call uses a fresh random nonce.
func (b *Box) Seal(plaintext []byte) (string, error) {
	var out string
	err := b.withKey(func(key []byte) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return err
		}
		nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("seal: nonce: %w", err)
		}
		out = Prefix + encoding.EncodeToString(aead.Seal(nonce, nonce, plaintext, nil))
		return nil
	})
	return out, err
}

// Open decrypts ciphertext produced by Seal.
func (b *Box) Open(ciphertext string) ([]byte, error) {
	raw, ok := strings.CutPrefix(ciphertext, Prefix)
	if !ok {
		return nil, ErrMalformed
	}
	data, err := encoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrMalformed
	}
	var out []byte
	err = b.withKey(func(key []byte) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return err
		}
		nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
		out, err = aead.Open(nil, nonce, ct, nil)
		if err != nil {
			return ErrOpen
		}
		return nil
	})
	return out, err
}

// Encrypt seals the JSON form of p.
func (b *Box) Encrypt(ctx context.Context, p model.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	plain, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("seal: marshal payload: %w", err)
	}
	defer memguard.WipeBytes(plain)
	return b.Seal(plain)
}

// Decrypt opens a record's ciphertext back into its payload.
func (b *Box) Decrypt(ciphertext string) (*model.Payload, error) {
	plain, err := b.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(plain)
	var p model.Payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("seal: unmarshal payload: %w", err)
	}
	return &p, nil
}
