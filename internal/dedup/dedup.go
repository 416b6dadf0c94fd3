// Package dedup remembers recently seen Telegram updates so a re-delivered
// update is processed once.
package dedup

import (
	"container/list"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of keys remembered when none is configured.
const DefaultCapacity = 1000

// Cache is a bounded set of keys. Once full, the oldest key is forgotten.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

// New creates a cache holding at most capacity keys.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Key builds the cache key for a message in a chat.
func Key(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// Seen reports whether key was already recorded, and records it if not.
// Hits do not refresh a key's age.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		return true
	}

	c.items[key] = c.order.PushFront(key)
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(string))
	}
	return false
}

// Len returns the number of remembered keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
