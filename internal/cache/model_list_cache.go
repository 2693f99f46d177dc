// Package cache provides the in-memory TTL cache backing the /v1/models
// endpoint. Adapted from the teacher's thought_signature_cache.go — same
// mutex-guarded map-with-expiry idiom — generalized from a per-session
// signature string to the full model listing, and fronted by
// golang.org/x/sync/singleflight so concurrent cold-cache requests collapse
// into a single store query instead of stampeding the database.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const modelListTTL = 30 * time.Second

// ModelEntry is one row of the cached /v1/models listing.
type ModelEntry struct {
	ID      string
	OwnedBy string
}

type modelListState struct {
	entries   []ModelEntry
	expiresAt time.Time
}

// ModelListCache caches the result of an expensive model-listing query
// (store.ListDistinctModelMappings + registry.BrandForProvider) for a short
// TTL. The zero value is ready to use.
type ModelListCache struct {
	mu    sync.RWMutex
	state modelListState
	group singleflight.Group
}

// Get returns the cached listing if still fresh, otherwise calls fetch to
// rebuild it. Concurrent calls during a miss share one fetch via
// singleflight.
func (c *ModelListCache) Get(fetch func() ([]ModelEntry, error)) ([]ModelEntry, error) {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()

	if time.Now().Before(st.expiresAt) {
		return st.entries, nil
	}

	v, err, _ := c.group.Do("models", func() (interface{}, error) {
		entries, err := fetch()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.state = modelListState{entries: entries, expiresAt: time.Now().Add(modelListTTL)}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ModelEntry), nil
}

// Invalidate forces the next Get to refetch, for use after a channel or
// model mapping is added/removed via an admin handler.
func (c *ModelListCache) Invalidate() {
	c.mu.Lock()
	c.state = modelListState{}
	c.mu.Unlock()
}
