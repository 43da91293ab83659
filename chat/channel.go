package chat

import (
	"context"
	"sync"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	jww "github.com/spf13/jwalterweatherman"
)

// Channel multiplexes live deliveries over a store.Feed with at most one
// active subscription per order. Each connection or process owns one.
type Channel struct {
	feed  store.Feed
	cache *Cache

	mu     sync.Mutex
	active map[uint]*channelEntry
	closed bool
}

type channelEntry struct {
	sub  store.Subscription
	once sync.Once
}

func (e *channelEntry) close(orderID uint) {
	e.once.Do(func() {
		if err := e.sub.Close(); err != nil {
			jww.WARN.Printf("[CHAT] Failed to close subscription for order %d: %v", orderID, err)
		}
	})
}

// NewChannel creates a Channel. cache may be nil.
func NewChannel(feed store.Feed, cache *Cache) *Channel {
	return &Channel{
		feed:   feed,
		cache:  cache,
		active: make(map[uint]*channelEntry),
	}
}

// Subscribe delivers new messages of orderID to onMessage in feed order.
// Any earlier subscription for the same order is torn down first.
// onReconnect, if set, runs when the transport recovers from a drop.
// The returned unsubscribe is idempotent and only removes the subscription
// it was returned for.
func (c *Channel) Subscribe(ctx context.Context, orderID uint, onMessage func(models.ChatMessage), onReconnect func()) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, newError(KindStoreUnavailable, CodeSessionClosed, "channel is closed")
	}
	if prev, ok := c.active[orderID]; ok {
		delete(c.active, orderID)
		prev.close(orderID)
	}
	c.mu.Unlock()

	handler := func(msg models.ChatMessage) {
		c.cache.InvalidateOrder(msg.OrderID)
		onMessage(msg)
	}
	sub, err := c.feed.Subscribe(ctx, orderID, handler, store.Hooks{OnReconnect: onReconnect})
	if err != nil {
		return nil, fromStore(err, "subscribe", CodeOrderNotFound)
	}

	entry := &channelEntry{sub: sub}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		entry.close(orderID)
		return nil, newError(KindStoreUnavailable, CodeSessionClosed, "channel is closed")
	}
	// A concurrent Subscribe for the same order may have won the slot.
	if prev, ok := c.active[orderID]; ok {
		prev.close(orderID)
	}
	c.active[orderID] = entry
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		if c.active[orderID] == entry {
			delete(c.active, orderID)
		}
		c.mu.Unlock()
		entry.close(orderID)
	}, nil
}

// Active reports whether orderID has a live subscription.
func (c *Channel) Active(orderID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[orderID]
	return ok
}

// Close tears down every subscription. Later Subscribe calls fail.
func (c *Channel) Close() {
	c.mu.Lock()
	entries := c.active
	c.active = make(map[uint]*channelEntry)
	c.closed = true
	c.mu.Unlock()

	for orderID, entry := range entries {
		entry.close(orderID)
	}
}
