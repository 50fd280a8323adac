package httpd

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// fileCache keeps recently served file bodies in memory for a fixed TTL.
// A server instance lives only until the next rebuild, so the cache never
// outlives the output it was filled from.
type fileCache struct {
	store *gocache.Cache
}

func newFileCache(ttl time.Duration) *fileCache {
	if ttl <= 0 {
		return nil
	}

	return &fileCache{store: gocache.New(ttl, 2*ttl)}
}

func (c *fileCache) get(name string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(name)
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)

	return body, ok
}

func (c *fileCache) set(name string, body []byte) {
	if c == nil {
		return
	}
	c.store.Set(name, body, gocache.DefaultExpiration)
}

func (c *fileCache) len() int {
	if c == nil {
		return 0
	}

	return c.store.ItemCount()
}
