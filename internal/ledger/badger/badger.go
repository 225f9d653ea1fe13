// Package badger implements ledger.Backend on an embedded BadgerDB, for a
// single-node ledger daemon that needs no external database.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Config configures the embedded database.
type Config struct {
	// Path is the data directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	SyncWrites bool

	// Logger receives badger's internal logs. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often the value log is garbage collected. Zero
	// disables GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns a durable configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for an in-memory database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// envelope is the stored form of a signed write.
type envelope struct {
	Value     []byte    `json:"value"`
	Writer    string    `json:"writer,omitempty"`
	Scheme    string    `json:"scheme,omitempty"`
	PublicKey []byte    `json:"public_key,omitempty"`
	Signature []byte    `json:"signature,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// Ledger is a ledger.Backend on BadgerDB.
type Ledger struct {
	db     *badger.DB
	logger *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Compile-time checks.
var (
	_ ledger.Backend = (*Ledger)(nil)
	_ ledger.Lister  = (*Ledger)(nil)
)

// Open opens (creating if needed) the database described by cfg.
func Open(cfg Config) (*Ledger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{db: db, logger: logger, stop: make(chan struct{}), done: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		go l.runGC(cfg.GCInterval, ratio)
	} else {
		close(l.done)
	}
	return l, nil
}

func (l *Ledger) runGC(interval time.Duration, ratio float64) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := l.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				l.logger.Warn("badger value log GC error", "err", err)
			}
		}
	}
}

func (l *Ledger) Get(ctx context.Context, key string) ([]byte, error) {
	env, err := l.entry(ctx, key)
	if err != nil || env == nil {
		return nil, err
	}
	return env.Value, nil
}

// Entry returns the signed write stored under key, or nil.
func (l *Ledger) Entry(ctx context.Context, key string) (*ledger.SignedWrite, error) {
	env, err := l.entry(ctx, key)
	if err != nil || env == nil {
		return nil, err
	}
	return &ledger.SignedWrite{
		Key: key, Value: env.Value,
		Writer: env.Writer, Scheme: env.Scheme,
		PublicKey: env.PublicKey, Signature: env.Signature,
	}, nil
}

func (l *Ledger) entry(ctx context.Context, key string) (*envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var env *envelope
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			env = &envelope{}
			return json.Unmarshal(val, env)
		})
	})
	if err != nil {
		return nil, mapErr(fmt.Errorf("badger get %s: %w", key, err))
	}
	return env, nil
}

func (l *Ledger) Put(ctx context.Context, w *ledger.SignedWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(envelope{
		Value: w.Value, Writer: w.Writer, Scheme: w.Scheme,
		PublicKey: w.PublicKey, Signature: w.Signature,
		WrittenAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("badger encode %s: %w", w.Key, err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(w.Key), val)
	})
	if err != nil {
		return mapErr(fmt.Errorf("badger put %s: %w", w.Key, err))
	}
	return nil
}

func (l *Ledger) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(fmt.Errorf("badger keys %s: %w", prefix, err))
	}
	return keys, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.db.IsClosed() {
		return ledger.ErrUnavailable
	}
	return nil
}

// Close stops GC and closes the database.
func (l *Ledger) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	return l.db.Close()
}

func mapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	return err
}
