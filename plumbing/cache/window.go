package cache

import (
	"container/list"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

// windowKey identifies one decoded-object slot: a pack's own checksum
// plus a byte offset into that pack, matching spec §3's Window
// key (pack, file-offset, length) and §4.C's get_or_load(pack, offset)
// contract. Two different packs with entries at the same offset must
// never collide, since decoded bytes from one pack are meaningless for
// another.
type windowKey struct {
	pack   hash.ObjectId
	offset int64
}

type offsetEntry struct {
	key windowKey
	obj plumbing.EncodedObject
}

// WindowCache is the per-pack decoded-object cache consulted while
// resolving a delta chain: keyed by (pack, byte offset) rather than by
// hash, since an offset is known before an object's hash has been
// computed (ofs-delta bases are only ever addressed by offset), and
// the pack identity keeps two packs' offsets from colliding in a
// shared instance. Concurrent misses on the same key collapse into a
// single load via singleflight, matching spec §4.C's "a single load
// per key under concurrent misses" contract.
type WindowCache struct {
	MaxSize FileSize

	mu         sync.Mutex
	actualSize FileSize
	ll         *list.List
	index      map[windowKey]*list.Element

	g   singleflight.Group
	log *slog.Logger
}

// WindowCacheOption configures a WindowCache at construction time.
type WindowCacheOption func(*WindowCache)

// WithWindowCacheLogger installs a logger other than the package
// default, consulted at eviction and pack-retirement boundaries.
func WithWindowCacheLogger(l *slog.Logger) WindowCacheOption {
	return func(c *WindowCache) { c.log = l }
}

// NewWindowCache returns a WindowCache bounded by maxSize bytes.
func NewWindowCache(maxSize FileSize, opts ...WindowCacheOption) *WindowCache {
	c := &WindowCache{
		MaxSize: maxSize,
		ll:      list.New(),
		index:   make(map[windowKey]*list.Element),
		log:     defaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WindowCache) Get(pack hash.ObjectId, offset int64) (plumbing.EncodedObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := windowKey{pack: pack, offset: offset}
	e, ok := c.index[k]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*offsetEntry).obj, true
}

func (c *WindowCache) Put(pack hash.ObjectId, offset int64, obj plumbing.EncodedObject) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := windowKey{pack: pack, offset: offset}
	if e, ok := c.index[k]; ok {
		c.actualSize -= FileSize(e.Value.(*offsetEntry).obj.Size())
		e.Value = &offsetEntry{key: k, obj: obj}
		c.ll.MoveToFront(e)
		c.actualSize += FileSize(obj.Size())
		c.evict()
		return
	}

	e := c.ll.PushFront(&offsetEntry{key: k, obj: obj})
	c.index[k] = e
	c.actualSize += FileSize(obj.Size())
	c.evict()
}

func (c *WindowCache) evict() {
	evicted := 0
	for c.actualSize > c.MaxSize && c.ll.Len() > 1 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*offsetEntry)
		c.actualSize -= FileSize(entry.obj.Size())
		delete(c.index, entry.key)
		c.ll.Remove(back)
		evicted++
	}
	if evicted > 0 {
		c.log.Debug("window cache evicted entries", "evicted", evicted, "size_bytes", int64(c.actualSize))
	}
}

// RemoveAll evicts every entry belonging to pack, per spec §5's
// requirement that WindowCache.remove_all(pack) run before a PackFile
// retired by a rescan closes, so a later pack reusing the same byte
// offsets can never observe a stale decoded object.
func (c *WindowCache) RemoveAll(pack hash.ObjectId) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.index {
		if k.pack != pack {
			continue
		}
		entry := e.Value.(*offsetEntry)
		c.actualSize -= FileSize(entry.obj.Size())
		delete(c.index, k)
		c.ll.Remove(e)
		removed++
	}
	if removed > 0 {
		c.log.Debug("window cache evicted retired pack", "pack", pack.String(), "entries", removed)
	}
}

func (c *WindowCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll = list.New()
	c.index = make(map[windowKey]*list.Element)
	c.actualSize = 0
}

// GetOrLoad returns the cached object at (pack, offset), or calls load
// exactly once per key among any concurrently-racing callers, caching
// and returning its result. This is the soft-reference-cache contract
// spec §4.C requires: a burst of concurrent cache misses for the same
// delta base must not trigger redundant decode work.
func (c *WindowCache) GetOrLoad(pack hash.ObjectId, offset int64, load func() (plumbing.EncodedObject, error)) (plumbing.EncodedObject, error) {
	if obj, ok := c.Get(pack, offset); ok {
		return obj, nil
	}

	v, err, _ := c.g.Do(keyFor(pack, offset), func() (interface{}, error) {
		if obj, ok := c.Get(pack, offset); ok {
			return obj, nil
		}
		obj, err := load()
		if err != nil {
			return nil, err
		}
		c.Put(pack, offset, obj)
		return obj, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(plumbing.EncodedObject), nil
}

func keyFor(pack hash.ObjectId, offset int64) string {
	return pack.String() + ":" + strconv.FormatInt(offset, 10)
}
