package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/metrics"
)

// DefaultTimeout bounds each ledger call when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Options configure an access path.
type Options struct {
	// Timeout applies per call. Expiry is reported as ErrUnavailable.
	Timeout time.Duration
}

// ReadOnly is the unauthenticated read path over a Backend.
type ReadOnly struct {
	backend Backend
	timeout time.Duration
}

// Compile-time check that ReadOnly implements Reader.
var _ Reader = (*ReadOnly)(nil)

// NewReadOnly returns a read-only path over b.
func NewReadOnly(b Backend, opts Options) *ReadOnly {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReadOnly{backend: b, timeout: timeout}
}

// Get returns the bytes stored under key, or nil when the key is missing.
func (r *ReadOnly) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := r.call(ctx, "get", func(ctx context.Context) error {
		b, err := r.backend.Get(ctx, key)
		out = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger get %s: %w", key, err)
	}
	return out, nil
}

// IsAvailable probes the backend.
func (r *ReadOnly) IsAvailable(ctx context.Context) bool {
	return r.call(ctx, "ping", r.backend.Ping) == nil
}

// Keys lists keys under prefix, or returns ErrListUnsupported.
func (r *ReadOnly) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, ok := r.backend.(Lister)
	if !ok {
		return nil, ErrListUnsupported
	}
	var out []string
	err := r.call(ctx, "keys", func(ctx context.Context) error {
		keys, err := lister.Keys(ctx, prefix)
		out = keys
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger keys %s: %w", prefix, err)
	}
	return out, nil
}

func (r *ReadOnly) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := classify(fn(ctx))
	metrics.LedgerLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.LedgerCalls.WithLabelValues(op, metrics.Result(err)).Inc()
	return err
}

// classify folds deadline expiry into ErrUnavailable so callers have a single
// sentinel for "transient, outcome unknown".
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// Authenticated is the signer path. Every call requires a signer; writes are
// signed before they leave the process.
type Authenticated struct {
	*ReadOnly
	signer Signer
}

// Compile-time check that Authenticated implements Writer.
var _ Writer = (*Authenticated)(nil)

// NewAuthenticated returns a write path over b signed by s. A nil s yields a
// path whose every call fails with ErrNoSigner.
func NewAuthenticated(b Backend, s Signer, opts Options) *Authenticated {
	return &Authenticated{ReadOnly: NewReadOnly(b, opts), signer: s}
}

// Identity returns the signer's account, or "" with no signer.
func (a *Authenticated) Identity() string {
	if a.signer == nil {
		return ""
	}
	return a.signer.Account()
}

// CanSign reports whether writes can be authorized.
func (a *Authenticated) CanSign() bool {
	return a.signer != nil
}

// Get reads key through the authenticated session.
func (a *Authenticated) Get(ctx context.Context, key string) ([]byte, error) {
	if a.signer == nil {
		return nil, ErrNoSigner
	}
	return a.ReadOnly.Get(ctx, key)
}

// Set signs and writes value under key. Signing happens before any network
// call, so ErrNoSigner and ErrSigningRejected guarantee nothing was written.
func (a *Authenticated) Set(ctx context.Context, key string, value []byte) error {
	if a.signer == nil {
		return ErrNoSigner
	}
	sig, err := a.signer.Sign(SigningMessage(key, value))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigningRejected, err)
	}
	w := &SignedWrite{
		Key:       key,
		Value:     value,
		Writer:    a.signer.Account(),
		Scheme:    a.signer.Scheme(),
		PublicKey: a.signer.PublicKey(),
		Signature: sig,
	}
	if err := a.call(ctx, "set", func(ctx context.Context) error {
		return a.backend.Put(ctx, w)
	}); err != nil {
		return fmt.Errorf("ledger set %s: %w", key, err)
	}
	return nil
}
