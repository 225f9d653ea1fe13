package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Signature schemes.
const (
	SchemeEd25519    = "ed25519"
	SchemeDilithium3 = "dilithium3"
)

// Key is a private signing key for one scheme.
type Key struct {
	scheme  string
	pub     []byte
	account string

	ed  ed25519.PrivateKey
	dil *mode3.PrivateKey
}

// Compile-time check that Key implements ledger.Signer.
var _ ledger.Signer = (*Key)(nil)

// GenerateKey creates a fresh key for scheme.
func GenerateKey(scheme string, rnd io.Reader) (*Key, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	switch scheme {
	case SchemeEd25519:
		_, priv, err := ed25519.GenerateKey(rnd)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return newEd25519Key(priv), nil
	case SchemeDilithium3:
		_, priv, err := mode3.GenerateKey(rnd)
		if err != nil {
			return nil, fmt.Errorf("generate dilithium3 key: %w", err)
		}
		return newDilithiumKey(priv)
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
}

// ParseKey rebuilds a key from its scheme and private key bytes, as written
// by MarshalPrivate.
func ParseKey(scheme string, priv []byte) (*Key, error) {
	switch scheme {
	case SchemeEd25519:
		switch len(priv) {
		case ed25519.SeedSize:
			return newEd25519Key(ed25519.NewKeyFromSeed(priv)), nil
		case ed25519.PrivateKeySize:
			return newEd25519Key(ed25519.PrivateKey(bytes.Clone(priv))), nil
		default:
			return nil, fmt.Errorf("invalid ed25519 private key length %d", len(priv))
		}
	case SchemeDilithium3:
		var sk mode3.PrivateKey
		if err := sk.UnmarshalBinary(priv); err != nil {
			return nil, fmt.Errorf("invalid dilithium3 private key: %w", err)
		}
		return newDilithiumKey(&sk)
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
}

func newEd25519Key(priv ed25519.PrivateKey) *Key {
	pub := priv.Public().(ed25519.PublicKey)
	return &Key{scheme: SchemeEd25519, pub: pub, account: Address(pub), ed: priv}
}

func newDilithiumKey(priv *mode3.PrivateKey) (*Key, error) {
	pub, err := priv.Public().(*mode3.PublicKey).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal dilithium3 public key: %w", err)
	}
	return &Key{scheme: SchemeDilithium3, pub: pub, account: Address(pub), dil: priv}, nil
}

func (k *Key) Account() string   { return k.account }
func (k *Key) Scheme() string    { return k.scheme }
func (k *Key) PublicKey() []byte { return bytes.Clone(k.pub) }

// Sign signs msg, which is already a SHA3-256 digest from
// ledger.SigningMessage.
func (k *Key) Sign(msg []byte) ([]byte, error) {
	switch k.scheme {
	case SchemeEd25519:
		return ed25519.Sign(k.ed, msg), nil
	case SchemeDilithium3:
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(k.dil, msg, sig)
		return sig, nil
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", k.scheme)
	}
}

// MarshalPrivate returns the private key bytes. Ed25519 keys are stored as
// their 32-byte seed.
func (k *Key) MarshalPrivate() ([]byte, error) {
	switch k.scheme {
	case SchemeEd25519:
		return bytes.Clone(k.ed.Seed()), nil
	case SchemeDilithium3:
		return k.dil.MarshalBinary()
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", k.scheme)
	}
}

// Address derives the account address for a public key.
func Address(pub []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// Verify checks that w carries a valid signature over its key and value and
// that the writer address belongs to the signing key. Failures wrap
// ledger.ErrBadSignature.
func Verify(w *ledger.SignedWrite) error {
	if w == nil {
		return fmt.Errorf("%w: nil write", ledger.ErrBadSignature)
	}
	if len(w.PublicKey) == 0 || len(w.Signature) == 0 {
		return fmt.Errorf("%w: unsigned write to %s", ledger.ErrBadSignature, w.Key)
	}
	if !strings.EqualFold(Address(w.PublicKey), w.Writer) {
		return fmt.Errorf("%w: writer %s does not match public key", ledger.ErrBadSignature, w.Writer)
	}
	msg := ledger.SigningMessage(w.Key, w.Value)
	switch w.Scheme {
	case SchemeEd25519:
		if len(w.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: invalid ed25519 public key length", ledger.ErrBadSignature)
		}
		if !ed25519.Verify(ed25519.PublicKey(w.PublicKey), msg, w.Signature) {
			return fmt.Errorf("%w: signature invalid", ledger.ErrBadSignature)
		}
	case SchemeDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(w.PublicKey); err != nil {
			return fmt.Errorf("%w: invalid dilithium3 public key: %v", ledger.ErrBadSignature, err)
		}
		if len(w.Signature) != mode3.SignatureSize || !mode3.Verify(&pk, msg, w.Signature) {
			return fmt.Errorf("%w: signature invalid", ledger.ErrBadSignature)
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ledger.ErrBadSignature, w.Scheme)
	}
	return nil
}
