package checker

import "sync"

type cacheEntry struct {
	done    chan struct{}
	verdict Verdict
}

// Cache memoizes external verdicts by normalized URL for the lifetime of a
// run. It is safe for concurrent use; entries are never evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// Do returns the verdict cached for key, running probe to fill it on the
// first lookup. Callers that arrive while the probe is in flight wait for it
// instead of probing again. hit is false only for the caller that probed.
func (c *Cache) Do(key string, probe func() Verdict) (verdict Verdict, hit bool) {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-entry.done
		return entry.verdict, true
	}
	entry := &cacheEntry{done: make(chan struct{})}
	c.entries[key] = entry
	c.mu.Unlock()

	defer close(entry.done)
	entry.verdict = probe()
	return entry.verdict, false
}

// Lookup returns a completed verdict without probing.
func (c *Cache) Lookup(key string) (Verdict, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return Verdict{}, false
	}

	select {
	case <-entry.done:
		return entry.verdict, true
	default:
		return Verdict{}, false
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
