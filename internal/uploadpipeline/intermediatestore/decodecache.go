package intermediatestore

import (
	"sync"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
)

// DefaultDecodeCacheEntries bounds how many decoded PartialReports
// DecodeCache holds before evicting the least-recently-used entry.
const DefaultDecodeCacheEntries = 256

// DecodeCache is a bounded, in-process LRU of decompressed PartialReports
// keyed by upload id, adapted from pkg/cache's doubly-linked-list blob
// cache pattern to avoid repeated zstd-decode cost when a Finisher retries
// load_many after a partial failure.
type DecodeCache struct {
	mu       sync.Mutex
	maxItems int
	entries  map[int64]*decodeEntry
	head     *decodeEntry
	tail     *decodeEntry
}

type decodeEntry struct {
	uploadID int64
	value    report.Partial
	prev     *decodeEntry
	next     *decodeEntry
}

// NewDecodeCache builds a DecodeCache holding up to maxItems entries.
func NewDecodeCache(maxItems int) *DecodeCache {
	if maxItems <= 0 {
		maxItems = DefaultDecodeCacheEntries
	}

	return &DecodeCache{
		maxItems: maxItems,
		entries:  make(map[int64]*decodeEntry),
	}
}

// Get returns the cached PartialReport for id, if present.
func (c *DecodeCache) Get(id int64) (report.Partial, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		var zero report.Partial

		return zero, false
	}

	c.moveToFront(e)

	return e.value, true
}

// Put inserts or refreshes the cached entry for id, evicting the
// least-recently-used entry if the cache is full.
func (c *DecodeCache) Put(id int64, value report.Partial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		e.value = value
		c.moveToFront(e)

		return
	}

	for len(c.entries) >= c.maxItems && c.tail != nil {
		c.evictTail()
	}

	e := &decodeEntry{uploadID: id, value: value}
	c.entries[id] = e
	c.addToFront(e)
}

// Remove evicts the cached entry for id, if any.
func (c *DecodeCache) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}

	c.removeFromList(e)
	delete(c.entries, id)
}

func (c *DecodeCache) moveToFront(e *decodeEntry) {
	if e == c.head {
		return
	}

	c.removeFromList(e)
	c.addToFront(e)
}

func (c *DecodeCache) addToFront(e *decodeEntry) {
	e.prev = nil
	e.next = c.head

	if c.head != nil {
		c.head.prev = e
	}

	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}

func (c *DecodeCache) removeFromList(e *decodeEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *DecodeCache) evictTail() {
	if c.tail == nil {
		return
	}

	victim := c.tail
	c.removeFromList(victim)
	delete(c.entries, victim.uploadID)
}
