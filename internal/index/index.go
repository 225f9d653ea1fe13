// Package index maintains the single ledger value listing every record id.
//
// The ledger has no compare-and-swap, so Append is a read-modify-write. Two
// clients appending at the same moment can overwrite each other. Append
// narrows the window by re-reading after every write and retrying while its
// own id is missing, but a write landing after the verification read can
// still drop an id; those records are found later by an orphan scan.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alfredjeanlab/peerledger/internal/codec"
	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/metrics"
)

// DefaultKey is the well-known ledger key holding the index.
const DefaultKey = "index:records"

// DefaultMaxAttempts bounds the read-modify-write rounds of one Append.
const DefaultMaxAttempts = 3

// ErrConflict is returned when Append exhausts its attempts without
// observing its id in the index.
var ErrConflict = errors.New("index: append lost to concurrent writer")

// Config tunes a Manager.
type Config struct {
	Key         string
	MaxAttempts int

	// OnConflict, if set, is called each time verification finds id missing.
	OnConflict func(ctx context.Context, id string, attempt int)
}

// Manager owns the append protocol for one index key.
type Manager struct {
	reader      ledger.Reader
	writer      ledger.Writer
	key         string
	maxAttempts int
	onConflict  func(context.Context, string, int)
	logger      *slog.Logger
}

// New returns a Manager. Lists go through r; appends go through w, which
// may be nil for a read-only manager.
func New(r ledger.Reader, w ledger.Writer, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{
		reader:      r,
		writer:      w,
		key:         cfg.Key,
		maxAttempts: cfg.MaxAttempts,
		onConflict:  cfg.OnConflict,
		logger:      logger,
	}
}

// Key returns the ledger key of the index.
func (m *Manager) Key() string { return m.key }

// List returns the ids in the index in append order. A missing index is
// empty. A corrupt index is logged and whatever ids precede the damage are
// returned.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.read(ctx, m.reader)
}

// Append adds id to the index. It returns nil once a read after its own
// write shows id present, and ErrConflict when every attempt lost.
// An id already in the index is not written again.
func (m *Manager) Append(ctx context.Context, id string) error {
	if m.writer == nil {
		return ledger.ErrNoSigner
	}
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		ids, err := m.read(ctx, m.writer)
		if err != nil {
			return err
		}
		if slices.Contains(ids, id) {
			metrics.IndexAppendAttempts.Observe(float64(attempt))
			return nil
		}

		b, err := codec.EncodeIndex(append(ids, id))
		if err != nil {
			return err
		}
		if err := m.writer.Set(ctx, m.key, b); err != nil {
			return err
		}

		after, err := m.read(ctx, m.writer)
		if err != nil {
			return fmt.Errorf("verify index append %s: %w", id, err)
		}
		if slices.Contains(after, id) {
			metrics.IndexAppendAttempts.Observe(float64(attempt))
			return nil
		}

		metrics.IndexConflicts.Inc()
		m.logger.Warn("index append overwritten by concurrent writer",
			"key", m.key, "id", id, "attempt", attempt, "max_attempts", m.maxAttempts)
		if m.onConflict != nil {
			m.onConflict(ctx, id, attempt)
		}
	}
	metrics.IndexAppendAttempts.Observe(float64(m.maxAttempts))
	return fmt.Errorf("%w: %s after %d attempts", ErrConflict, id, m.maxAttempts)
}

func (m *Manager) read(ctx context.Context, r ledger.Reader) ([]string, error) {
	b, err := r.Get(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	ids, err := codec.DecodeIndex(m.key, b)
	if err != nil {
		m.logger.Warn("index is corrupt, keeping salvaged ids",
			"key", m.key, "salvaged", len(ids), "err", err)
	}
	return ids, nil
}
