// Package ledger defines the key-value ledger the record store is built on and
// the two ways of reaching it: a read-only path and a signer-authenticated
// write path.
//
// The ledger offers linearizable per-key Get and Put and nothing else: there
// are no multi-key transactions and no compare-and-swap.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrUnavailable marks transient failures: the backend could not be
	// reached or the call timed out. A write that fails this way may or may
	// not have committed.
	ErrUnavailable = errors.New("ledger: unavailable")

	// ErrNoSigner is returned by the authenticated path when no wallet
	// session can sign.
	ErrNoSigner = errors.New("ledger: no signer session")

	// ErrSigningRejected is returned when the wallet declined to sign.
	ErrSigningRejected = errors.New("ledger: signing rejected")

	// ErrBadSignature is returned by backends that verify writes.
	ErrBadSignature = errors.New("ledger: bad signature")

	// ErrListUnsupported is returned by Keys when the backend cannot
	// enumerate keys.
	ErrListUnsupported = errors.New("ledger: backend cannot list keys")
)

// SignedWrite is a single authenticated Put.
type SignedWrite struct {
	Key       string
	Value     []byte
	Writer    string // account address of the signer
	Scheme    string
	PublicKey []byte
	Signature []byte
}

// Backend is a raw ledger substrate.
//
// Contract:
//   - Get returns nil, nil for a missing key.
//   - Put replaces the value stored under w.Key.
//   - Ping returns nil when the backend is reachable.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, w *SignedWrite) error
	Ping(ctx context.Context) error
	Close() error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Signer is a wallet capable of authorizing writes.
type Signer interface {
	Account() string
	Scheme() string
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
}

// Reader is the read-only ledger path.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IsAvailable(ctx context.Context) bool
}

// Writer is the signer-authenticated ledger path.
type Writer interface {
	Reader
	Set(ctx context.Context, key string, value []byte) error
	Identity() string
	CanSign() bool
}

const signingDomain = "peerledger/set/v1"

// SigningMessage returns the digest a signer signs to authorize writing value
// under key. Key and value are length-prefixed so no two (key, value) pairs
// share a message.
func SigningMessage(key string, value []byte) []byte {
	h := sha3.New256()
	var n [8]byte
	h.Write([]byte(signingDomain))
	binary.BigEndian.PutUint64(n[:], uint64(len(key)))
	h.Write(n[:])
	h.Write([]byte(key))
	binary.BigEndian.PutUint64(n[:], uint64(len(value)))
	h.Write(n[:])
	h.Write(value)
	return h.Sum(nil)
}
