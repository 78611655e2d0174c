package vm

// Property caches memoize trait resolution per access site. Most sites see
// a single receiver class, a few see a handful, and a small number see
// many; the cache moves through the matching states and stops caching
// once a site turns megamorphic.
//
// A cache belongs to one worker and is not synchronized.

// CacheState represents the current state of a property cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single (class, trait) cached
	CachePolymorphic                   // 2-6 entries
	CacheMegamorphic                   // Too many classes, use full lookup
)

func (s CacheState) String() string {
	switch s {
	case CacheMonomorphic:
		return "mono"
	case CachePolymorphic:
		return "poly"
	case CacheMegamorphic:
		return "mega"
	}
	return "empty"
}

// MaxCacheEntries is the maximum number of classes a polymorphic cache
// tracks.
const MaxCacheEntries = 6

type propertyCacheEntry struct {
	class *Class
	trait *Trait
}

// PropertyCache is the resolution cache of a single access site.
type PropertyCache struct {
	State   CacheState
	entries [MaxCacheEntries]propertyCacheEntry
	count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the cached trait for class, or nil on a miss.
func (pc *PropertyCache) Lookup(class *Class) *Trait {
	switch pc.State {
	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < pc.count; i++ {
			if pc.entries[i].class == class {
				pc.Hits++
				return pc.entries[i].trait
			}
		}
	}
	pc.Misses++
	return nil
}

// Update records a resolution, upgrading the cache state as new classes
// appear. Misses are never cached.
func (pc *PropertyCache) Update(class *Class, t *Trait) {
	if t == nil || pc.State == CacheMegamorphic {
		return
	}
	for i := 0; i < pc.count; i++ {
		if pc.entries[i].class == class {
			return
		}
	}
	if pc.count == MaxCacheEntries {
		pc.State = CacheMegamorphic
		pc.entries = [MaxCacheEntries]propertyCacheEntry{}
		pc.count = 0
		return
	}
	pc.entries[pc.count] = propertyCacheEntry{class: class, trait: t}
	pc.count++
	if pc.count == 1 {
		pc.State = CacheMonomorphic
	} else {
		pc.State = CachePolymorphic
	}
}

// Len returns the number of cached classes.
func (pc *PropertyCache) Len() int { return pc.count }

// HitRate returns the cache hit rate as a percentage (0-100).
func (pc *PropertyCache) HitRate() float64 {
	total := pc.Hits + pc.Misses
	if total == 0 {
		return 0
	}
	return float64(pc.Hits) * 100 / float64(total)
}

// Reset clears the cache back to empty state.
func (pc *PropertyCache) Reset() {
	*pc = PropertyCache{}
}

// ---------------------------------------------------------------------------
// PropertyCacheTable
// ---------------------------------------------------------------------------

// PropertyCacheTable holds the caches of every access site in one method,
// keyed by site offset.
type PropertyCacheTable struct {
	caches map[int]*PropertyCache
}

// NewPropertyCacheTable creates an empty table.
func NewPropertyCacheTable() *PropertyCacheTable {
	return &PropertyCacheTable{caches: make(map[int]*PropertyCache)}
}

// GetOrCreate returns the cache for a site, creating one if needed.
func (t *PropertyCacheTable) GetOrCreate(site int) *PropertyCache {
	if pc := t.caches[site]; pc != nil {
		return pc
	}
	pc := &PropertyCache{}
	t.caches[site] = pc
	return pc
}

// PropertyCacheStats aggregates the caches of a table.
type PropertyCacheStats struct {
	Sites       int
	Monomorphic int
	Polymorphic int
	Megamorphic int
	Empty       int
	Hits        uint64
	Misses      uint64
}

// HitRate returns the aggregate hit rate as a percentage.
func (s PropertyCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100 / float64(total)
}

// Stats returns aggregate statistics for all caches in the table.
func (t *PropertyCacheTable) Stats() PropertyCacheStats {
	var s PropertyCacheStats
	for _, pc := range t.caches {
		s.Sites++
		switch pc.State {
		case CacheMonomorphic:
			s.Monomorphic++
		case CachePolymorphic:
			s.Polymorphic++
		case CacheMegamorphic:
			s.Megamorphic++
		default:
			s.Empty++
		}
		s.Hits += pc.Hits
		s.Misses += pc.Misses
	}
	return s
}

// Reset clears all caches in the table.
func (t *PropertyCacheTable) Reset() {
	for _, pc := range t.caches {
		pc.Reset()
	}
}
