// internal/engine/cache.go
package engine

import (
	"sync"
	"time"
)

// ruleCache holds the compiled active rule set with TTL expiry. Rule
// definitions are read-mostly; a short TTL plus explicit invalidation on
// rule mutation keeps triggers off the database on the hot path while
// bounding staleness between instances.
type ruleCache struct {
	mu       sync.RWMutex
	rules    []*CompiledRule
	cachedAt time.Time
	ttl      time.Duration
	valid    bool
}

func newRuleCache(ttl time.Duration) *ruleCache {
	return &ruleCache{ttl: ttl}
}

// get returns the cached rule set, or nil on miss/expiry.
func (c *ruleCache) get() []*CompiledRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return nil
	}
	if c.ttl > 0 && time.Since(c.cachedAt) > c.ttl {
		return nil
	}
	out := make([]*CompiledRule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *ruleCache) set(rules []*CompiledRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = make([]*CompiledRule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *ruleCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.rules = nil
}
