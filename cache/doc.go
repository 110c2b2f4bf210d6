// Package cache provides the in-memory read-through store used by the fetch
// layer.
//
// Entries are keyed by (ResourceType, ID) and expire after a TTL chosen per
// resource type: volatile resources such as blocks expire quickly, stable
// ones such as users live longer. The table is plain data in Config, not
// logic. When MaxSize is exceeded the least recently used entry (by Get or
// Set) is evicted.
//
// Store.Get hands back the stored value itself. Cached values are shared
// between every caller that reads them and must be treated as immutable.
//
//	store := cache.NewStore(cache.DefaultConfig())
//	store.Set(cache.Page, "p1", page)
//	if v, ok := store.Get(cache.Page, "p1"); ok {
//	    render(v.(*Page))
//	}
//
//	// After a write that changes a collection:
//	store.InvalidateType(cache.Block)
package cache
