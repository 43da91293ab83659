package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kendall-kelly/design-studio-api/models"
)

// DefaultCacheTTL is how long cached rooms and message lists stay fresh.
const DefaultCacheTTL = 5 * time.Minute

// Cache is a small TTL cache of rooms and message lists keyed by order. It
// only saves round-trips; the store stays authoritative. A nil *Cache is
// valid and caches nothing.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// NewCache creates a cache with the given TTL, or DefaultCacheTTL if ttl <= 0.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func roomKey(orderID uint) string {
	return fmt.Sprintf("room:%d", orderID)
}

func messagesKey(orderID uint) string {
	return fmt.Sprintf("messages:%d", orderID)
}

// Get returns a live entry.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache) Set(key string, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops one key.
func (c *Cache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// InvalidateOrder drops the room and message entries of one order.
func (c *Cache) InvalidateOrder(orderID uint) {
	c.Invalidate(roomKey(orderID))
	c.Invalidate(messagesKey(orderID))
}

// Purge empties the cache.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) room(orderID uint) (*models.ChatRoom, bool) {
	v, ok := c.Get(roomKey(orderID))
	if !ok {
		return nil, false
	}
	room := v.(models.ChatRoom)
	return &room, true
}

func (c *Cache) setRoom(room *models.ChatRoom) {
	c.Set(roomKey(room.OrderID), *room)
}

func (c *Cache) messages(orderID uint) ([]models.ChatMessage, bool) {
	v, ok := c.Get(messagesKey(orderID))
	if !ok {
		return nil, false
	}
	return copyMessages(v.([]models.ChatMessage)), true
}

func (c *Cache) setMessages(orderID uint, messages []models.ChatMessage) {
	c.Set(messagesKey(orderID), copyMessages(messages))
}

func copyMessages(messages []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	return out
}
