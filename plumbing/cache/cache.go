// Package cache implements component C of the object storage engine:
// bounded, size-aware caches for decoded objects, keyed either by
// object hash (the loose/delta-base object cache) or by pack offset
// (the window cache used while resolving delta chains within one
// pack). Both are simple byte-budgeted LRUs; eviction order is
// least-recently-used, tracked via container/list the way the
// teacher's buffer/object caches do it.
package cache

import (
	"container/list"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gitbridge/gitodb/plumbing"
)

// FileSize represents the size of an object in bytes, for readable
// size-budget arithmetic (cache.MiByte, cache.GiByte, etc).
type FileSize int64

const (
	Byte FileSize = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
)

// DefaultMaxSize is used by constructors that don't take an explicit
// byte budget.
const DefaultMaxSize = 96 * MiByte

// Object is a bounded cache of decoded objects keyed by hash.
type Object interface {
	Put(o plumbing.EncodedObject)
	Get(k plumbing.Hash) (plumbing.EncodedObject, bool)
	Clear()

	// GetOrLoad returns the cached object for k, or calls load exactly
	// once per hash among any concurrently-racing callers, caching and
	// returning its result (spec §4.C's single-load-per-key-under-
	// concurrent-misses contract, the same one WindowCache provides
	// for pack offsets).
	GetOrLoad(k plumbing.Hash, load func() (plumbing.EncodedObject, error)) (plumbing.EncodedObject, error)
}

type objectEntry struct {
	hash plumbing.Hash
	obj  plumbing.EncodedObject
}

// ObjectLRU is an Object cache bounded by total object size rather
// than entry count: a single large object can by itself fill (and
// remain alone in) the cache.
type ObjectLRU struct {
	MaxSize FileSize

	mu         sync.Mutex
	actualSize FileSize
	ll         *list.List
	index      map[plumbing.Hash]*list.Element

	g   singleflight.Group
	log *slog.Logger
}

// ObjectLRUOption configures an ObjectLRU at construction time.
type ObjectLRUOption func(*ObjectLRU)

// WithObjectLRULogger installs a logger other than the package
// default, consulted only when the cache actually evicts entries.
func WithObjectLRULogger(l *slog.Logger) ObjectLRUOption {
	return func(c *ObjectLRU) { c.log = l }
}

// NewObjectLRU returns an ObjectLRU bounded by maxSize bytes.
func NewObjectLRU(maxSize FileSize, opts ...ObjectLRUOption) *ObjectLRU {
	c := &ObjectLRU{
		MaxSize: maxSize,
		ll:      list.New(),
		index:   make(map[plumbing.Hash]*list.Element),
		log:     defaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewObjectLRUDefault returns an ObjectLRU bounded by DefaultMaxSize.
func NewObjectLRUDefault() *ObjectLRU {
	return NewObjectLRU(DefaultMaxSize)
}

func (c *ObjectLRU) Put(o plumbing.EncodedObject) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := o.Hash()
	if e, ok := c.index[key]; ok {
		c.actualSize -= FileSize(e.Value.(*objectEntry).obj.Size())
		e.Value = &objectEntry{hash: key, obj: o}
		c.ll.MoveToFront(e)
		c.actualSize += FileSize(o.Size())
		c.evict()
		return
	}

	e := c.ll.PushFront(&objectEntry{hash: key, obj: o})
	c.index[key] = e
	c.actualSize += FileSize(o.Size())
	c.evict()
}

func (c *ObjectLRU) Get(k plumbing.Hash) (plumbing.EncodedObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index[k]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*objectEntry).obj, true
}

func (c *ObjectLRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll = list.New()
	c.index = make(map[plumbing.Hash]*list.Element)
	c.actualSize = 0
}

// GetOrLoad returns the cached object for k, or calls load exactly
// once per hash among any concurrently-racing callers, caching and
// returning its result.
func (c *ObjectLRU) GetOrLoad(k plumbing.Hash, load func() (plumbing.EncodedObject, error)) (plumbing.EncodedObject, error) {
	if obj, ok := c.Get(k); ok {
		return obj, nil
	}

	v, err, _ := c.g.Do(k.String(), func() (interface{}, error) {
		if obj, ok := c.Get(k); ok {
			return obj, nil
		}
		obj, err := load()
		if err != nil {
			return nil, err
		}
		c.Put(obj)
		return obj, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(plumbing.EncodedObject), nil
}

// evict drops the least-recently-used entries until actualSize fits
// MaxSize, always leaving at least the most-recently-added entry in
// place (a single oversized object is still cacheable, it just
// evicts everything else).
func (c *ObjectLRU) evict() {
	evicted := 0
	for c.actualSize > c.MaxSize && c.ll.Len() > 1 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*objectEntry)
		c.actualSize -= FileSize(entry.obj.Size())
		delete(c.index, entry.hash)
		c.ll.Remove(back)
		evicted++
	}
	if evicted > 0 {
		c.log.Debug("object cache evicted entries", "evicted", evicted, "size_bytes", int64(c.actualSize))
	}
}
