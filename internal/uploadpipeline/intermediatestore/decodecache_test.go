package intermediatestore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/intermediatestore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
)

func TestDecodeCache_GetMiss(t *testing.T) {
	cache := intermediatestore.NewDecodeCache(2)

	_, ok := cache.Get(1)
	assert.False(t, ok)
}

func TestDecodeCache_PutThenGet(t *testing.T) {
	cache := intermediatestore.NewDecodeCache(2)
	p := report.Partial{Chunks: map[string][]int{"a.go": {1}}}

	cache.Put(1, p)

	got, ok := cache.Get(1)
	assert.True(t, ok)
	assert.True(t, p.Equal(got))
}

func TestDecodeCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := intermediatestore.NewDecodeCache(2)

	cache.Put(1, report.Partial{Chunks: map[string][]int{"a.go": {1}}})
	cache.Put(2, report.Partial{Chunks: map[string][]int{"b.go": {2}}})

	// touch 1 so 2 becomes the LRU entry
	_, _ = cache.Get(1)

	cache.Put(3, report.Partial{Chunks: map[string][]int{"c.go": {3}}})

	_, ok := cache.Get(2)
	assert.False(t, ok, "entry 2 should have been evicted")

	_, ok = cache.Get(1)
	assert.True(t, ok)

	_, ok = cache.Get(3)
	assert.True(t, ok)
}

func TestDecodeCache_Remove(t *testing.T) {
	cache := intermediatestore.NewDecodeCache(2)
	cache.Put(1, report.Partial{Chunks: map[string][]int{"a.go": {1}}})

	cache.Remove(1)

	_, ok := cache.Get(1)
	assert.False(t, ok)
}

func TestDecodeCache_RemoveUnknownIsNoop(t *testing.T) {
	cache := intermediatestore.NewDecodeCache(2)
	cache.Remove(999)
}

func TestDecodeCache_DefaultsMaxItemsWhenNonPositive(t *testing.T) {
	cache := intermediatestore.NewDecodeCache(0)

	for id := int64(0); id < 300; id++ {
		cache.Put(id, report.Partial{Chunks: map[string][]int{}})
	}

	_, ok := cache.Get(299)
	assert.True(t, ok)
}
