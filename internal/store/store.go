// Package store exposes feedback records over the ledger: creating a record
// writes it under its own key and then appends its id to the shared index;
// listing reads the index and then every record it names.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/alfredjeanlab/peerledger/internal/codec"
	"github.com/alfredjeanlab/peerledger/internal/events"
	"github.com/alfredjeanlab/peerledger/internal/idgen"
	"github.com/alfredjeanlab/peerledger/internal/index"
	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/metrics"
	"github.com/alfredjeanlab/peerledger/internal/model"
)

// journalLimit bounds the write journal. Older ids fall off; the key scan
// in Orphans still finds their records on backends that list keys.
const journalLimit = 4096

// Encrypter turns a plaintext payload into the ciphertext stored on a record.
type Encrypter interface {
	Encrypt(ctx context.Context, p model.Payload) (string, error)
}

// Config tunes a Store. Zero values use defaults.
type Config struct {
	Index index.Config
	Now   func() time.Time
	NewID func() (string, error)
}

// Store is the record store. Reads go through the read-only ledger path,
// writes through the authenticated one.
type Store struct {
	reader    ledger.Reader
	writer    ledger.Writer
	index     *index.Manager
	encrypter Encrypter
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() (string, error)

	mu      sync.Mutex
	written []string
}

// New builds a Store. w may be nil for a read-only store; pub may be nil.
func New(r ledger.Reader, w ledger.Writer, enc Encrypter, pub events.Publisher, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Generate
	}
	s := &Store{
		reader:    r,
		writer:    w,
		encrypter: enc,
		publisher: pub,
		logger:    logger,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	idxCfg := cfg.Index
	userHook := idxCfg.OnConflict
	idxCfg.OnConflict = func(ctx context.Context, id string, attempt int) {
		s.publish(ctx, events.TopicIndexConflict, events.IndexConflict{
			RecordID: id, Index: s.index.Key(), Attempt: attempt, Writer: s.Identity(),
		})
		if userHook != nil {
			userHook(ctx, id, attempt)
		}
	}
	s.index = index.New(r, w, idxCfg, logger)
	return s
}

// Identity returns the account records are written as, or "".
func (s *Store) Identity() string {
	if s.writer == nil {
		return ""
	}
	return s.writer.Identity()
}

// CanWrite reports whether Create can authorize writes.
func (s *Store) CanWrite() bool {
	return s.writer != nil && s.writer.CanSign()
}

// Available reports whether the ledger answers reads.
func (s *Store) Available(ctx context.Context) bool {
	return s.reader.IsAvailable(ctx)
}

// IndexKey returns the ledger key of the index.
func (s *Store) IndexKey() string { return s.index.Key() }

// Create validates in, encrypts its payload, writes the record and appends
// its id to the index. The reviewer is the signing session's account.
//
// Nothing is written when validation, the signer check or encryption fails.
// If the record write succeeds but the index append does not, Create returns
// the record together with an *IndexAppendError.
func (s *Store) Create(ctx context.Context, in model.CreateInput) (*model.Record, error) {
	if err := model.ValidateCreate(&in); err != nil {
		return nil, err
	}
	if !s.CanWrite() {
		return nil, ledger.ErrNoSigner
	}
	if s.encrypter == nil {
		return nil, &EncryptionError{Err: errors.New("no encrypter configured")}
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generating record id: %w", err)
	}
	ciphertext, err := s.encrypter.Encrypt(ctx, in.Payload())
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}
	if !utf8.ValidString(ciphertext) {
		return nil, &EncryptionError{Err: fmt.Errorf("ciphertext: %w", codec.ErrNotUTF8)}
	}

	rec := &model.Record{
		ID:         id,
		Ciphertext: ciphertext,
		CreatedAt:  s.now().Unix(),
		Reviewer:   s.writer.Identity(),
		Reviewee:   in.Reviewee,
		Category:   in.Category,
		ProjectID:  in.ProjectID,
	}
	b, err := codec.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}

	if err := s.writer.Set(ctx, codec.RecordKey(id), b); err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			// The write may still have committed.
			s.remember(id)
		}
		return nil, err
	}
	s.remember(id)

	if err := s.index.Append(ctx, id); err != nil {
		s.logger.Warn("record written but not indexed", "id", id, "err", err)
		s.publish(ctx, events.TopicRecordOrphaned, events.RecordOrphaned{
			RecordID: id, Index: s.index.Key(), Reason: err.Error(),
		})
		return rec, &IndexAppendError{ID: id, Err: err}
	}

	metrics.RecordsCreated.Inc()
	s.logger.Debug("record created", "id", id, "category", rec.Category)
	s.publish(ctx, events.TopicRecordCreated, events.RecordCreated{Record: rec, Index: s.index.Key()})
	return rec, nil
}

// ListAll returns every record named by the index, in index order. When the
// ledger is unavailable it returns an empty list. Missing and undecodable
// records are logged and skipped.
func (s *Store) ListAll(ctx context.Context) ([]*model.Record, error) {
	if !s.reader.IsAvailable(ctx) {
		s.logger.Warn("ledger unavailable, returning no records")
		return []*model.Record{}, nil
	}
	ids, err := s.index.List(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*model.Record, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		rec, err := s.read(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.RecordsSkipped.WithLabelValues("missing").Inc()
			s.logger.Warn("indexed record missing, skipping", "id", id)
			continue
		case isDecodeError(err):
			metrics.RecordsSkipped.WithLabelValues("decode").Inc()
			s.logger.Warn("indexed record unreadable, skipping", "id", id, "err", err)
			continue
		case err != nil:
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Refresh re-reads the ledger. It is ListAll.
func (s *Store) Refresh(ctx context.Context) ([]*model.Record, error) {
	return s.ListAll(ctx)
}

// Get reads a single record, indexed or not.
func (s *Store) Get(ctx context.Context, id string) (*model.Record, error) {
	return s.read(ctx, id)
}

func (s *Store) read(ctx context.Context, id string) (*model.Record, error) {
	key := codec.RecordKey(id)
	b, err := s.reader.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return codec.DecodeRecord(key, b)
}

// Written returns the ids of records this store wrote, or may have written,
// in write order.
func (s *Store) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.written)
}

func (s *Store) remember(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, id)
	if n := len(s.written) - journalLimit; n > 0 {
		s.written = slices.Delete(s.written, 0, n)
	}
}

// forget drops journal entries for ids the index now names.
func (s *Store) forget(indexed map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = slices.DeleteFunc(s.written, func(id string) bool { return indexed[id] })
}

func (s *Store) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publishing event failed", "topic", topic, "err", err)
	}
}

func isDecodeError(err error) bool {
	var de *codec.DecodeError
	return errors.As(err, &de)
}
