// Package sync periodically snapshots the feedback ledger to off-ledger
// destinations (S3, a git repository) as JSONL.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Destination receives a complete JSONL snapshot on each sync.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the ledger on an interval and copies the snapshot to
// every destination. A failing destination does not stop the others.
type Scheduler struct {
	src      Source
	dests    []Destination
	interval time.Duration
	log      *slog.Logger

	stop context.CancelFunc
	done sync.WaitGroup
}

func NewScheduler(src Source, dests []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{src: src, dests: dests, interval: interval, log: logger}
}

// Start syncs once right away and then every interval until Stop.
func (s *Scheduler) Start() {
	ctx, stop := context.WithCancel(context.Background())
	s.stop = stop
	s.done.Add(1)
	go s.loop(ctx)
}

// Stop waits for an in-flight sync to notice cancellation and return.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	s.done.Wait()
}

// SyncOnce takes one snapshot and offers it to every destination. The
// returned error joins all destination failures.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	var snap bytes.Buffer
	if err := ExportJSONL(ctx, s.src, &snap); err != nil {
		return fmt.Errorf("taking snapshot: %w", err)
	}

	var errs []error
	for i, dest := range s.dests {
		if err := dest.Write(ctx, snap.Bytes()); err != nil {
			s.log.Warn("snapshot not delivered", "destination", fmt.Sprintf("%T", dest), "index", i, "err", err)
			errs = append(errs, fmt.Errorf("destination %d (%T): %w", i, dest, err))
		}
	}
	s.log.Info("snapshot synced",
		"bytes", snap.Len(),
		"delivered", len(s.dests)-len(errs),
		"failed", len(errs))
	return errors.Join(errs...)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.done.Done()

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sync failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
