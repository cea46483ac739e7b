package merchant

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultVariantCacheSize bounds the number of raw strings whose variants are memoized
const DefaultVariantCacheSize = 4096

// VariantCache is a bounded LRU of raw merchant string -> normalized variants.
// It is owned by whoever constructs the Scorer; there is no package-level cache.
type VariantCache struct {
	lru *lru.Cache[string, []string]
}

// NewVariantCache creates a cache holding at most size entries
func NewVariantCache(size int) (*VariantCache, error) {
	if size <= 0 {
		size = DefaultVariantCacheSize
	}
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &VariantCache{lru: c}, nil
}

// Get retrieves a copy of the cached variants
func (c *VariantCache) Get(raw string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(raw)
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Set stores variants, evicting the least recently used entry when full
func (c *VariantCache) Set(raw string, variants []string) {
	if c == nil {
		return
	}
	c.lru.Add(raw, slices.Clone(variants))
}

// Clear removes all entries
func (c *VariantCache) Clear() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Size returns the number of cached entries
func (c *VariantCache) Size() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
