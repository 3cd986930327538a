package ignore

import "sync"

// ruleSetCache memoizes rule sets by absolute directory path. Capacity is
// fixed; when full, the oldest entry is evicted so repeated resolutions
// against many base paths cannot grow the cache without bound.
type ruleSetCache struct {
	mutex    sync.Mutex
	capacity int
	entries  map[string]*RuleSet
	order    []string
}

func newRuleSetCache(capacity int) *ruleSetCache {
	return &ruleSetCache{capacity: capacity, entries: make(map[string]*RuleSet)}
}

// lookup returns the cached rule set for key, building and storing it on a
// miss. The build runs outside the lock; when two goroutines race, the first
// stored result wins and the other build is discarded.
func (cache *ruleSetCache) lookup(key string, build func() *RuleSet) *RuleSet {
	cache.mutex.Lock()
	if cachedRuleSet, exists := cache.entries[key]; exists {
		cache.mutex.Unlock()
		return cachedRuleSet
	}
	cache.mutex.Unlock()

	builtRuleSet := build()

	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	if cachedRuleSet, exists := cache.entries[key]; exists {
		return cachedRuleSet
	}
	if len(cache.order) >= cache.capacity {
		oldestKey := cache.order[0]
		cache.order = cache.order[1:]
		delete(cache.entries, oldestKey)
	}
	cache.entries[key] = builtRuleSet
	cache.order = append(cache.order, key)
	return builtRuleSet
}

// clear drops every cached rule set.
func (cache *ruleSetCache) clear() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.entries = make(map[string]*RuleSet)
	cache.order = nil
}
