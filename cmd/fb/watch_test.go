package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/ledger/memory"
	"github.com/alfredjeanlab/peerledger/internal/model"
)

type fakeSubscriber struct {
	ch    chan []byte
	topic string
}

func (f *fakeSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	f.topic = topic
	return f.ch, func() {}, nil
}

func (f *fakeSubscriber) Close() error { return nil }

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatcher_FollowPrintsNewRecords(t *testing.T) {
	a, err := newApp(memory.New(), testConfig(t, true, true))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	out := &lockedBuffer{}
	cmd := &cobra.Command{Use: "watch"}
	cmd.SetOut(out)
	w := &watcher{cmd: cmd, records: localRecords{Store: a.store}, filter: model.RecordFilter{Category: model.CategoryAll}, seen: map[string]bool{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.poll(ctx); err != nil {
		t.Fatal(err)
	}

	sub := &fakeSubscriber{ch: make(chan []byte, 1)}
	done := make(chan error, 1)
	go func() { done <- w.follow(ctx, sub, nil, time.Millisecond) }()

	rec, err := a.store.Create(ctx, model.CreateInput{
		Reviewee: "0xcarol", Category: model.CategoryCollaboration, Comment: "paired well",
	})
	if err != nil {
		t.Fatal(err)
	}
	sub.ch <- []byte(`{}`)

	deadline := time.After(5 * time.Second)
	for !strings.Contains(out.String(), rec.ID) {
		select {
		case <-deadline:
			t.Fatalf("record %s never printed; output:\n%s", rec.ID, out.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("follow returned %v", err)
	}
	if sub.topic != "feedback.>" {
		t.Errorf("subscribed to %q", sub.topic)
	}
}
