package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// feedBuffer bounds how many undelivered payloads a watcher may lag behind.
const feedBuffer = 64

func dial(url string, opts ...nats.Option) (*nats.Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher fans record lifecycle events out to FEEDBACK_NATS_URL.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := dial(url, nats.Name("peerledger-writer"))
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber feeds `fb watch`. It reconnects forever; callers pass
// handlers to learn about gaps and re-list after one.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	all := append([]nats.Option{
		nats.Name("peerledger-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := dial(url, all...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// feed is one subscription's delivery channel. Once stopped, late messages
// from the NATS dispatcher are discarded instead of sent on a closed channel.
type feed struct {
	mu      sync.Mutex
	out     chan []byte
	stopped bool
	stop    sync.Once
}

func (f *feed) deliver(msg *nats.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case f.out <- msg.Data:
	default:
		// slow watcher; it re-lists on the next event anyway
	}
}

func (f *feed) shutdown(sub *nats.Subscription) {
	f.stop.Do(func() {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		f.mu.Lock()
		f.stopped = true
		for len(f.out) > 0 {
			<-f.out
		}
		close(f.out)
		f.mu.Unlock()
	})
}

// Subscribe delivers raw payloads for topic, which may be a wildcard such
// as TopicAll. The returned func unsubscribes and closes the channel; it is
// safe to call more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	f := &feed{out: make(chan []byte, feedBuffer)}

	sub, err := s.conn.Subscribe(topic, f.deliver)
	if err != nil {
		f.shutdown(nil)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Round-trip so the interest is registered before the first poll runs.
	if err := s.conn.Flush(); err != nil {
		f.shutdown(sub)
		return nil, nil, fmt.Errorf("registering %s: %w", topic, err)
	}
	return f.out, func() { f.shutdown(sub) }, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
