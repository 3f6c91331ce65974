package dnsx

import (
	"sync"
	"time"
)

// Exchanger is a single mail exchanger candidate, lowest priority first.
type Exchanger struct {
	Host     string
	Priority uint16
}

type cacheEntry struct {
	records   []Exchanger
	expiresAt time.Time
}

// Cache maps domains to MX record sets with a TTL checked at read time.
// There is no eviction beyond overwrite-on-refresh; the working set is
// bounded in practice by the recipient domains actually mailed. The clock is
// injected so tests control expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// Get returns the cached record set, or false when absent or expired. An
// entry is never served at or past its expiry.
func (c *Cache) Get(domain string) ([]Exchanger, bool) {
	c.mu.RLock()
	entry, ok := c.entries[domain]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.records, true
}

// Set stores the record set with the given TTL, overwriting any previous
// entry. Last write wins; overwrites are side-effect-free.
func (c *Cache) Set(domain string, records []Exchanger, ttl time.Duration) {
	c.mu.Lock()
	c.entries[domain] = cacheEntry{
		records:   records,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}
