// Package memory is an in-process ledger backend. It backs `--ledger memory`
// and the tests of everything built on the ledger.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Ledger is a map-backed ledger.Backend safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]ledger.SignedWrite
	down    bool
}

// Compile-time checks.
var (
	_ ledger.Backend = (*Ledger)(nil)
	_ ledger.Lister  = (*Ledger)(nil)
)

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]ledger.SignedWrite)}
}

// SetAvailable toggles simulated downtime. While down every call fails with
// ledger.ErrUnavailable.
func (l *Ledger) SetAvailable(up bool) {
	l.mu.Lock()
	l.down = !up
	l.mu.Unlock()
}

func (l *Ledger) Get(_ context.Context, key string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.down {
		return nil, ledger.ErrUnavailable
	}
	w, ok := l.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), w.Value...), nil
}

func (l *Ledger) Put(_ context.Context, w *ledger.SignedWrite) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return ledger.ErrUnavailable
	}
	cp := *w
	cp.Value = append([]byte(nil), w.Value...)
	l.entries[w.Key] = cp
	return nil
}

func (l *Ledger) Ping(context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.down {
		return ledger.ErrUnavailable
	}
	return nil
}

func (l *Ledger) Keys(_ context.Context, prefix string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.down {
		return nil, ledger.ErrUnavailable
	}
	var keys []string
	for k := range l.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Raw stores value under key without a signature. Tests use it to plant
// corrupt or foreign data.
func (l *Ledger) Raw(key string, value []byte) {
	l.mu.Lock()
	l.entries[key] = ledger.SignedWrite{Key: key, Value: append([]byte(nil), value...)}
	l.mu.Unlock()
}

// LastWrite returns the write currently stored under key.
func (l *Ledger) LastWrite(key string) (ledger.SignedWrite, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.entries[key]
	return w, ok
}

func (l *Ledger) Close() error { return nil }
