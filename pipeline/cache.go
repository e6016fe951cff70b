package pipeline

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gogpu/softpipe"
)

// Cache serialization errors.
var (
	// ErrCacheCorrupt is returned when deserializing malformed cache data.
	ErrCacheCorrupt = errors.New("pipeline: corrupt cache data")

	// ErrCacheVersion is returned for cache data written by an
	// incompatible version.
	ErrCacheVersion = errors.New("pipeline: unsupported cache data version")
)

// Serialized cache format.
const (
	cacheMagic   = "SPC1"
	cacheVersion = 1
)

// Cache stores built pipelines keyed by their description hash.
//
// Lookup and Insert are safe under concurrent calls from multiple builders.
// An object only becomes visible through Insert after the builder has fully
// validated it, so Lookup never returns a partially built pipeline. When two
// builders race on the same key, the first insertion wins and both objects
// are valid and equivalent.
//
// The base cache grows without bound; NewCacheLimit applies
// least-recently-built eviction outside the correctness contract.
type Cache struct {
	// mu protects entries, order, and primed.
	mu sync.RWMutex

	// entries maps description keys to built pipelines.
	entries map[Key]*Pipeline

	// order records insertion order for bounded eviction.
	order []Key

	// primed holds keys restored by Deserialize, for prewarm diagnostics.
	primed map[Key]struct{}

	// limit is the maximum entry count; 0 means unbounded.
	limit int

	// hits counts cache hits (atomic for lock-free reads).
	hits uint64

	// misses counts cache misses (atomic for lock-free reads).
	misses uint64
}

// NewCache creates an empty, unbounded pipeline cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[Key]*Pipeline),
		primed:  make(map[Key]struct{}),
	}
}

// NewCacheLimit creates a cache that holds at most limit entries, evicting
// the least recently built pipeline on overflow. A limit of 0 or less means
// unbounded.
func NewCacheLimit(limit int) *Cache {
	c := NewCache()
	if limit > 0 {
		c.limit = limit
	}
	return c
}

// Lookup returns the pipeline built for key, if present.
func (c *Cache) Lookup(key Key) (*Pipeline, bool) {
	c.mu.RLock()
	p, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		atomic.AddUint64(&c.hits, 1)
		return p, true
	}
	atomic.AddUint64(&c.misses, 1)
	return nil, false
}

// Insert publishes a fully built pipeline under key. If the key is already
// present the existing entry is kept: concurrent builders computing the
// same key produce equivalent objects, so either is valid.
// Inserting a nil pipeline is a no-op.
func (c *Cache) Insert(key Key, p *Pipeline) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return
	}
	c.entries[key] = p
	c.order = append(c.order, key)

	if _, warm := c.primed[key]; warm {
		softpipe.Logger().Debug("pipeline cache primed key rebuilt", "key", uint64(key))
	}

	if c.limit > 0 && len(c.entries) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Size returns the number of cached pipelines.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the number of cache hits and misses.
// The values are read atomically and may not be perfectly synchronized.
func (c *Cache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// HitRate returns the cache hit rate as a fraction (0.0 to 1.0).
// Returns 0.0 if no lookups have been made.
func (c *Cache) HitRate() float64 {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Primed reports whether key was present in data passed to Deserialize.
func (c *Cache) Primed(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.primed[key]
	return ok
}

// Clear removes all entries and primed keys and resets statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Pipeline)
	c.order = nil
	c.primed = make(map[Key]struct{})
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
}

// Serialize returns an opaque blob describing the cache contents.
//
// Compiled stage callables cannot be persisted, so the blob records the key
// set only: a header plus the sorted keys of all live entries. Feeding the
// blob to Deserialize in a later process primes those keys, letting hosts
// rebuild a warm cache deterministically.
func (c *Cache) Serialize() []byte {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	buf := make([]byte, 0, 4+2+4+8*len(keys))
	buf = append(buf, cacheMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, cacheVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(k))
	}
	return buf
}

// Deserialize restores the key set written by Serialize into the primed
// set. It does not create cache entries: entries only appear through Insert
// after a full build. Malformed data is rejected without modifying the
// cache.
func (c *Cache) Deserialize(data []byte) error {
	if len(data) < 10 {
		return ErrCacheCorrupt
	}
	if string(data[:4]) != cacheMagic {
		return ErrCacheCorrupt
	}
	if binary.LittleEndian.Uint16(data[4:6]) != cacheVersion {
		return ErrCacheVersion
	}
	count := binary.LittleEndian.Uint32(data[6:10])
	if len(data) != 10+8*int(count) {
		return ErrCacheCorrupt
	}

	keys := make([]Key, count)
	for i := range keys {
		keys[i] = Key(binary.LittleEndian.Uint64(data[10+8*i:]))
	}

	c.mu.Lock()
	for _, k := range keys {
		c.primed[k] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}
