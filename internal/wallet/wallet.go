// Package wallet provides the signer sessions that authorize ledger writes.
//
// A session either holds a Key and can sign, or is anonymous and can only
// read. Accounts are derived from public keys the way Ethereum-style
// addresses are: the last 20 bytes of Keccak-256(public key), hex encoded.
package wallet

import (
	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Session is the caller's wallet identity.
type Session struct {
	key *Key
}

// Anonymous returns a session with no signer.
func Anonymous() *Session { return &Session{} }

// NewSession returns a session signing with k. A nil k is anonymous.
func NewSession(k *Key) *Session { return &Session{key: k} }

// Account returns the session address, or "" when anonymous.
func (s *Session) Account() string {
	if s == nil || s.key == nil {
		return ""
	}
	return s.key.Account()
}

// CanSign reports whether the session can authorize writes.
func (s *Session) CanSign() bool {
	return s != nil && s.key != nil
}

// Signer returns the session's ledger.Signer, or a nil interface when
// anonymous.
func (s *Session) Signer() ledger.Signer {
	if !s.CanSign() {
		return nil
	}
	return s.key
}
