// Package idempotency tracks Idempotency-Key headers on record creation so a
// retried request returns the record created by the first attempt.
package idempotency

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// State describes what Claim found for a key.
type State int

const (
	// Claimed means the key was new and now belongs to the caller, who must
	// either Complete or Release it.
	Claimed State = iota
	// InFlight means another request holds the key and has not completed.
	InFlight
	// Done means the key maps to an already created record.
	Done
)

// Cache records idempotency keys.
type Cache interface {
	// Claim atomically checks key and reserves it if unseen. For Done the
	// returned id is the record created under the key.
	Claim(ctx context.Context, key string) (id string, state State)

	// Complete binds a claimed key to the created record id.
	Complete(ctx context.Context, key, id string)

	// Release forgets a claimed key so the request can be retried.
	Release(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key string
	id  string
}

// memoryCache keeps at most maxSize completed keys and evicts the oldest
// first. A maxSize <= 0 keeps every key.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
	size    atomic.Int64
}

// NewMemoryCache creates an in-memory idempotency cache.
func NewMemoryCache(opts ...Option) Cache {
	c := &memoryCache{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*list.Element)
	c.order = list.New()
	return c
}

// Key scopes an Idempotency-Key header value to the actor that sent it.
func Key(actorID, header string) string {
	return actorID + "\x00" + header
}

func (c *memoryCache) Claim(_ context.Context, key string) (string, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		if e.id == "" {
			return "", InFlight
		}
		return e.id, Done
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushFront(&entry{key: key})
	c.size.Add(1)
	return "", Claimed
}

func (c *memoryCache) Complete(_ context.Context, key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).id = id
	}
}

func (c *memoryCache) Release(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
		c.size.Add(-1)
	}
}

// evictOldest drops the least recently claimed completed key. In-flight keys
// are never evicted, so the cache may exceed maxSize while that many creates
// are running. Caller holds c.mu.
func (c *memoryCache) evictOldest() {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.id == "" {
			continue
		}
		c.order.Remove(el)
		delete(c.entries, e.key)
		c.size.Add(-1)
		return
	}
}

func (c *memoryCache) Size() int64 {
	return c.size.Load()
}
