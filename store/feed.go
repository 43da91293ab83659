package store

import (
	"context"
	"sync"

	"github.com/kendall-kelly/design-studio-api/models"
	jww "github.com/spf13/jwalterweatherman"
)

// subscriberQueueSize bounds the per-subscriber backlog of the memory feed.
const subscriberQueueSize = 256

// MessageHandler receives newly inserted chat messages for one order.
type MessageHandler func(msg models.ChatMessage)

// Hooks are optional transport callbacks for a subscription.
type Hooks struct {
	// OnReconnect is called after the transport came back from a drop.
	// Events published while it was down are not replayed.
	OnReconnect func()
}

// Subscription is a live registration on the feed. Close is idempotent.
type Subscription interface {
	Close() error
}

// Feed is the change notification stream for inserted chat messages, keyed
// by order id. Delivery follows publish order within an order; there is no
// history replay.
type Feed interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
	Subscribe(ctx context.Context, orderID uint, handler MessageHandler, hooks Hooks) (Subscription, error)
	Close() error
}

// feedEvent is one item on a subscriber queue: a message or a reconnect marker.
type feedEvent struct {
	msg       models.ChatMessage
	reconnect bool
}

// MemoryFeed is an in-process Feed. Every subscriber gets its own queue and
// delivery goroutine so a slow handler never blocks publishers.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[uint]map[*memorySubscription]struct{}
	down   map[uint]bool
	closed bool
}

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subs: make(map[uint]map[*memorySubscription]struct{}),
		down: make(map[uint]bool),
	}
}

type memorySubscription struct {
	feed    *MemoryFeed
	orderID uint
	handler MessageHandler
	hooks   Hooks
	queue   chan feedEvent
	done    chan struct{}
	once    sync.Once
}

// Publish fans the message out to every subscriber of its order.
func (f *MemoryFeed) Publish(_ context.Context, msg models.ChatMessage) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed || f.down[msg.OrderID] {
		return nil
	}
	for sub := range f.subs[msg.OrderID] {
		sub.enqueue(feedEvent{msg: msg})
	}
	return nil
}

// Subscribe registers handler for messages of orderID.
func (f *MemoryFeed) Subscribe(_ context.Context, orderID uint, handler MessageHandler, hooks Hooks) (Subscription, error) {
	sub := &memorySubscription{
		feed:    f,
		orderID: orderID,
		handler: handler,
		hooks:   hooks,
		queue:   make(chan feedEvent, subscriberQueueSize),
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrUnavailable
	}
	if f.subs[orderID] == nil {
		f.subs[orderID] = make(map[*memorySubscription]struct{})
	}
	f.subs[orderID][sub] = struct{}{}
	f.mu.Unlock()

	go sub.deliver()
	return sub, nil
}

// Subscribers returns the number of live subscriptions for an order.
func (f *MemoryFeed) Subscribers(orderID uint) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[orderID])
}

// Disconnect simulates a transport drop for an order: publishes are lost
// until Reconnect.
func (f *MemoryFeed) Disconnect(orderID uint) {
	f.mu.Lock()
	f.down[orderID] = true
	f.mu.Unlock()
}

// Reconnect ends a simulated drop and notifies the order's subscribers.
func (f *MemoryFeed) Reconnect(orderID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.down, orderID)
	for sub := range f.subs[orderID] {
		sub.enqueue(feedEvent{reconnect: true})
	}
}

// Close stops every subscription.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	subs := make([]*memorySubscription, 0)
	for _, set := range f.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	f.subs = make(map[uint]map[*memorySubscription]struct{})
	f.closed = true
	f.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (s *memorySubscription) enqueue(event feedEvent) {
	select {
	case <-s.done:
	case s.queue <- event:
	default:
		jww.WARN.Printf("[FEED] Subscriber queue full for order %d, dropping event", s.orderID)
	}
}

func (s *memorySubscription) deliver() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			// A close that raced the dequeue wins.
			select {
			case <-s.done:
				return
			default:
			}
			if event.reconnect {
				if s.hooks.OnReconnect != nil {
					s.hooks.OnReconnect()
				}
				continue
			}
			s.handler(event.msg)
		}
	}
}

func (s *memorySubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Close unregisters the subscription. It does not wait for an in-flight
// handler call to return.
func (s *memorySubscription) Close() error {
	s.feed.mu.Lock()
	if set := s.feed.subs[s.orderID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(s.feed.subs, s.orderID)
		}
	}
	s.feed.mu.Unlock()

	s.stop()
	return nil
}
