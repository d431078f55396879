package events

// Message is one event received from the external bus. Subject is the
// concrete topic it was published on, even when the subscription used a
// wildcard.
type Message struct {
	Subject string
	Data    []byte
}

// Subscriber receives events from the external bus.
type Subscriber interface {
	// Subscribe delivers messages matching topic on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
