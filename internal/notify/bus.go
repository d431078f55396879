// Package notify is the in-process publish/subscribe hub that wakes live
// sessions when new posts are stored or when a view's filter changes.
//
// There are two topics. Global carries no payload and reaches every Global
// subscriber. Scoped carries a view id and reaches only subscribers
// registered under that exact id.
//
// Delivery is a signal, not a message: each subscription owns a channel with
// capacity one, and a publish that finds the channel already full is folded
// into the pending signal. A publish therefore never blocks on a slow
// subscriber, and a subscriber that wakes up once sees every publish that
// happened before it woke.
package notify

import "sync"

// Topic identifies a notification kind.
type Topic int

const (
	// Global signals that new posts were stored.
	Global Topic = iota
	// Scoped signals that one view's filter changed.
	Scoped
)

func (t Topic) String() string {
	switch t {
	case Global:
		return "global"
	case Scoped:
		return "scoped"
	default:
		return "unknown"
	}
}

// Subscription is a registration on the bus. It must be released with
// Unsubscribe on every exit path.
type Subscription struct {
	bus   *Bus
	topic Topic
	scope string
	ch    chan struct{}
	once  sync.Once
}

// C returns the signal channel. It is never closed.
func (s *Subscription) C() <-chan struct{} { return s.ch }

// Topic returns the topic the subscription was registered under.
func (s *Subscription) Topic() Topic { return s.topic }

// Scope returns the view id for Scoped subscriptions, "" for Global.
func (s *Subscription) Scope() string { return s.scope }

// Unsubscribe removes the subscription from the bus and discards any pending
// signal. Safe to call more than once. Once it returns, no publish reaches
// this subscription.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		select {
		case <-s.ch:
		default:
		}
	})
}

// Bus fans signals out to subscribers in registration order.
type Bus struct {
	mu     sync.RWMutex
	global []*Subscription
	scoped map[string][]*Subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{scoped: make(map[string][]*Subscription)}
}

// Subscribe registers a new subscription. scope is required for Scoped and
// ignored for Global.
func (b *Bus) Subscribe(topic Topic, scope string) *Subscription {
	if topic == Global {
		scope = ""
	}
	s := &Subscription{
		bus:   b,
		topic: topic,
		scope: scope,
		ch:    make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == Global {
		b.global = append(b.global, s)
	} else {
		b.scoped[scope] = append(b.scoped[scope], s)
	}
	return s
}

// PublishGlobal signals every Global subscriber and returns how many were
// registered at publish time.
func (b *Bus) PublishGlobal() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.global {
		s.signal()
	}
	return len(b.global)
}

// PublishScoped signals the subscribers registered under viewID and returns
// how many there were.
func (b *Bus) PublishScoped(viewID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.scoped[viewID]
	for _, s := range subs {
		s.signal()
	}
	return len(subs)
}

// Len returns the number of subscriptions currently registered on topic.
func (b *Bus) Len(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if topic == Global {
		return len(b.global)
	}
	n := 0
	for _, subs := range b.scoped {
		n += len(subs)
	}
	return n
}

// signal performs a non-blocking send; a full channel already holds a
// pending signal.
func (s *Subscription) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.topic == Global {
		b.global = removeSub(b.global, s)
		return
	}
	subs := removeSub(b.scoped[s.scope], s)
	if len(subs) == 0 {
		delete(b.scoped, s.scope)
	} else {
		b.scoped[s.scope] = subs
	}
}

// removeSub returns subs without s, preserving order.
func removeSub(subs []*Subscription, s *Subscription) []*Subscription {
	out := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub != s {
			out = append(out, sub)
		}
	}
	return out
}
