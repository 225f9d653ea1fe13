package events

// Subscriber follows store activity published by other processes.
// *NATSSubscriber implements it.
type Subscriber interface {
	// Subscribe delivers raw payloads for topic, which may use NATS
	// wildcards such as TopicAll. The cancel func closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

var _ Subscriber = (*NATSSubscriber)(nil)
