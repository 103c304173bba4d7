package cache

import (
	"sync"
	"testing"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestObject(content string) plumbing.EncodedObject {
	return plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, []byte(content))
}

func TestObjectLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewObjectLRU(2 * Byte)

	a := newTestObject("a")
	b := newTestObject("b")
	c.Put(a)
	c.Put(b)

	// Touch a so b becomes the least-recently-used entry.
	_, ok := c.Get(a.Hash())
	require.True(t, ok)

	big := newTestObject("xx")
	c.Put(big)

	_, ok = c.Get(b.Hash())
	assert.False(t, ok, "b should have been evicted")
}

func TestObjectLRUOversizedEntryStillCached(t *testing.T) {
	c := NewObjectLRU(1 * Byte)
	big := newTestObject("way too big for the budget")
	c.Put(big)

	got, ok := c.Get(big.Hash())
	require.True(t, ok)
	assert.Equal(t, big.Hash(), got.Hash())
}

func TestWindowCacheGetOrLoadSingleFlight(t *testing.T) {
	c := NewWindowCache(DefaultMaxSize)
	pack := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")

	var calls int
	var mu sync.Mutex

	var wg sync.WaitGroup
	results := make([]plumbing.EncodedObject, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj, err := c.GetOrLoad(pack, 42, func() (plumbing.EncodedObject, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return newTestObject("loaded-once"), nil
			})
			require.NoError(t, err)
			results[i] = obj
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls, "concurrent misses on the same (pack, offset) must load exactly once")
	for _, r := range results {
		assert.Equal(t, results[0].Hash(), r.Hash())
	}
}

func TestWindowCachePutGet(t *testing.T) {
	c := NewWindowCache(DefaultMaxSize)
	packA := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	packB := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")

	obj := newTestObject("hello")
	c.Put(packA, 100, obj)

	got, ok := c.Get(packA, 100)
	require.True(t, ok)
	assert.Equal(t, obj.Hash(), got.Hash())

	_, ok = c.Get(packA, 200)
	assert.False(t, ok)

	// Same offset, different pack: must not collide.
	_, ok = c.Get(packB, 100)
	assert.False(t, ok, "a different pack's entry at the same offset must not be visible")
}

func TestWindowCacheRemoveAllEvictsOnlyThatPack(t *testing.T) {
	c := NewWindowCache(DefaultMaxSize)
	packA := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	packB := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")

	c.Put(packA, 100, newTestObject("a-100"))
	c.Put(packB, 100, newTestObject("b-100"))

	c.RemoveAll(packA)

	_, ok := c.Get(packA, 100)
	assert.False(t, ok, "packA's entries must be gone after RemoveAll")

	_, ok = c.Get(packB, 100)
	assert.True(t, ok, "packB's entries must survive packA's RemoveAll")
}
