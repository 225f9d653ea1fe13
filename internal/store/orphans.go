package store

import (
	"context"
	"errors"
	"slices"

	"github.com/alfredjeanlab/peerledger/internal/codec"
	"github.com/alfredjeanlab/peerledger/internal/events"
	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/metrics"
)

type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Orphans returns the ids of records that exist in the ledger but are not in
// the index, sorted. Candidates are every record key the backend can list
// plus every id this store wrote. Orphans only reports; see Repair. Like
// ListAll it reports nothing while the ledger is unavailable.
func (s *Store) Orphans(ctx context.Context) ([]string, error) {
	if !s.reader.IsAvailable(ctx) {
		s.logger.Warn("ledger unavailable, skipping orphan scan")
		return []string{}, nil
	}
	candidates := s.Written()
	if kl, ok := s.reader.(keyLister); ok {
		keys, err := kl.Keys(ctx, codec.RecordPrefix)
		switch {
		case errors.Is(err, ledger.ErrListUnsupported):
			s.logger.Debug("ledger cannot list keys, scanning own writes only")
		case err != nil:
			return nil, err
		}
		for _, k := range keys {
			if id, ok := codec.RecordID(k); ok {
				candidates = append(candidates, id)
			}
		}
	}

	indexed, err := s.index.List(ctx)
	if err != nil {
		return nil, err
	}
	inIndex := make(map[string]bool, len(indexed))
	for _, id := range indexed {
		inIndex[id] = true
	}
	s.forget(inIndex)

	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	var orphans []string
	for _, id := range candidates {
		if inIndex[id] {
			continue
		}
		b, err := s.reader.Get(ctx, codec.RecordKey(id))
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			// Never committed.
			continue
		}
		orphans = append(orphans, id)
		s.logger.Warn("orphaned record", "id", id, "index", s.index.Key())
		s.publish(ctx, events.TopicRecordOrphaned, events.RecordOrphaned{
			RecordID: id, Index: s.index.Key(), Reason: "missing from index",
		})
	}
	metrics.OrphansFound.Set(float64(len(orphans)))
	return orphans, nil
}

// Repair appends each id to the index. Ids whose record is missing or
// unreadable are skipped so the index never names a record that cannot be
// read. It returns the ids that were appended.
func (s *Store) Repair(ctx context.Context, ids []string) ([]string, error) {
	if !s.CanWrite() {
		return nil, ledger.ErrNoSigner
	}
	var repaired []string
	for _, id := range ids {
		if _, err := s.read(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) || isDecodeError(err) {
				s.logger.Warn("not repairing unreadable record", "id", id, "err", err)
				continue
			}
			return repaired, err
		}
		if err := s.index.Append(ctx, id); err != nil {
			return repaired, &IndexAppendError{ID: id, Err: err}
		}
		repaired = append(repaired, id)
		s.logger.Info("orphaned record re-indexed", "id", id)
		s.publish(ctx, events.TopicRecordRepaired, events.RecordRepaired{
			RecordID: id, Index: s.index.Key(), RepairedBy: s.Identity(),
		})
	}
	return repaired, nil
}
