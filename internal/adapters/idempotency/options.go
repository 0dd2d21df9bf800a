package idempotency

// Option applies a configuration option to the memory cache.
type Option func(*memoryCache)

// WithMaxSize bounds the number of remembered keys. maxSize <= 0 disables
// eviction.
func WithMaxSize(maxSize int) Option {
	return func(c *memoryCache) {
		c.maxSize = maxSize
	}
}
