package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const defaultTopicBuffer = 64

// Bus orchestrates topic-based publish/subscribe messaging. A nil *Bus is
// safe to publish to and subscribe on; subscriptions from a nil bus are
// already closed.
type Bus struct {
	logger       *log.Logger
	mu           sync.RWMutex
	subscribers  map[Topic]map[uint64]*Subscription
	topicBuffers map[Topic]int
	nextID       uint64
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTopicBuffer sets the subscription buffer size for a given topic.
func WithTopicBuffer(topic Topic, size int) BusOption {
	return func(b *Bus) {
		if size <= 0 {
			size = 1
		}
		b.topicBuffers[topic] = size
	}
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	bus := &Bus{
		logger:      log.Default(),
		subscribers: make(map[Topic]map[uint64]*Subscription),
		topicBuffers: map[Topic]int{
			TopicDapsStatus:    128,
			TopicDapsDiscovery: 64,
		},
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Publish sends the envelope to all subscribers of its topic. Slow
// subscribers drop the event rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	if b == nil || env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[env.Topic] {
		select {
		case <-ctx.Done():
			return
		case sub.ch <- env:
		default:
			b.logger.Printf("[EventBus] dropping %s event for slow subscriber %d", env.Topic, sub.id)
		}
	}
}

// Subscribe registers a subscriber for the given topic.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	if b == nil {
		ch := make(chan Envelope)
		close(ch)
		sub := &Subscription{ch: ch, done: make(chan struct{})}
		close(sub.done)
		sub.closed.Store(true)
		return sub
	}

	buffer := b.topicBuffers[topic]
	if buffer <= 0 {
		buffer = defaultTopicBuffer
	}

	id := atomic.AddUint64(&b.nextID, 1)
	sub := &Subscription{
		topic: topic,
		id:    id,
		ch:    make(chan Envelope, buffer),
		done:  make(chan struct{}),
		bus:   b,
	}

	b.mu.Lock()
	if _, exists := b.subscribers[topic]; !exists {
		b.subscribers[topic] = make(map[uint64]*Subscription)
	}
	b.subscribers[topic][id] = sub
	b.mu.Unlock()

	return sub
}

// Shutdown closes all subscriptions and empties routing tables.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for id, sub := range subs {
			sub.closeLocked()
			delete(subs, id)
		}
		delete(b.subscribers, topic)
	}
}

// Subscription delivers envelopes for one topic until closed.
type Subscription struct {
	topic  Topic
	id     uint64
	ch     chan Envelope
	done   chan struct{}
	bus    *Bus
	closed atomic.Bool
}

// Events returns the delivery channel. It is closed when the subscription is.
func (s *Subscription) Events() <-chan Envelope {
	return s.ch
}

// Done is closed when the subscription is terminated.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription and closes its channel. Safe to call
// multiple times.
func (s *Subscription) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.bus != nil {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subscribers[s.topic]; ok {
			delete(subs, s.id)
		}
		s.bus.mu.Unlock()
	}
	close(s.done)
	close(s.ch)
}

// closeLocked is called by Bus.Shutdown with the bus mutex held.
func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	close(s.ch)
}
