package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/events"
)

const (
	// replaySize is how many recent events are kept for Last-Event-ID
	// reconnection.
	replaySize = 256

	sseKeepaliveInterval = 15 * time.Second
)

type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

type sseClient struct {
	topics []string
	ch     chan sseEvent
}

// Broadcaster is an events.Publisher that forwards to another publisher and
// fans every event out to connected stream clients.
type Broadcaster struct {
	next events.Publisher

	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	recent  []sseEvent // oldest first, at most replaySize
}

var _ events.Publisher = (*Broadcaster)(nil)

// NewBroadcaster wraps next, which may be nil.
func NewBroadcaster(next events.Publisher) *Broadcaster {
	if next == nil {
		next = &events.NoopPublisher{}
	}
	return &Broadcaster{next: next, clients: make(map[*sseClient]struct{})}
}

// Publish forwards the event and broadcasts it. Broadcasting never fails the
// publish.
func (b *Broadcaster) Publish(ctx context.Context, topic string, event any) error {
	if payload, err := json.Marshal(event); err != nil {
		slog.Warn("failed to marshal event for stream", "topic", topic, "err", err)
	} else {
		b.broadcast(topic, payload)
	}
	return b.next.Publish(ctx, topic, event)
}

func (b *Broadcaster) Close() error { return b.next.Close() }

func (b *Broadcaster) broadcast(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastID++
	evt := sseEvent{ID: b.lastID, Topic: topic, Data: payload}
	if len(b.recent) == replaySize {
		b.recent = append(b.recent[:0], b.recent[1:]...)
	}
	b.recent = append(b.recent, evt)

	for c := range b.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// Slow client; drop rather than block the store.
		}
	}
}

// subscribe registers a client and returns the buffered events after
// lastID that it should see first.
func (b *Broadcaster) subscribe(topics []string, lastID uint64) (*sseClient, []sseEvent) {
	c := &sseClient{topics: topics, ch: make(chan sseEvent, 64)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}

	var replay []sseEvent
	if lastID > 0 {
		for _, evt := range b.recent {
			if evt.ID > lastID && c.wants(evt.Topic) {
				replay = append(replay, evt)
			}
		}
	}
	return c, replay
}

func (b *Broadcaster) unsubscribe(c *sseClient) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

func (c *sseClient) wants(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if topicMatches(p, topic) {
			return true
		}
	}
	return false
}

// topicMatches applies NATS subject rules: "*" matches one token and a
// trailing ">" matches one or more.
func topicMatches(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	tok := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(tok)
		}
		if i >= len(tok) || (p != "*" && p != tok[i]) {
			return false
		}
	}
	return len(pat) == len(tok)
}

// handleEventStream handles GET /v1/events/stream.
func (s *FeedbackServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	client, replay := s.events.subscribe(topics, lastID)
	defer s.events.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range replay {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
