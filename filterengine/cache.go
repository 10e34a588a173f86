package filterengine

// resultCache is a bounded decision cache evicting the oldest entry once the
// ceiling is exceeded. Not safe for concurrent use; the engine guards it.
type resultCache struct {
	max     int
	entries map[string]Decision
	order   []string
}

func newResultCache(max int) *resultCache {
	return &resultCache{
		max:     max,
		entries: make(map[string]Decision),
	}
}

func (c *resultCache) get(key string) (Decision, bool) {
	d, ok := c.entries[key]
	return d, ok
}

func (c *resultCache) put(key string, d Decision) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = d

	for len(c.entries) > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *resultCache) clear() {
	c.entries = make(map[string]Decision)
	c.order = nil
}

func (c *resultCache) len() int {
	return len(c.entries)
}
