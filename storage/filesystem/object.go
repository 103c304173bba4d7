package filesystem

import (
	"container/list"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/cache"
	"github.com/gitbridge/gitodb/plumbing/format/idxfile"
	"github.com/gitbridge/gitodb/plumbing/format/packfile"
	"github.com/gitbridge/gitodb/plumbing/hash"
	"github.com/gitbridge/gitodb/plumbing/storer"
	"github.com/gitbridge/gitodb/storage/filesystem/dotgit"
)

// racyWindow is the Δ used by the raciness defense: a directory scan
// younger than this is "racy clean" and a subsequent probe at the
// same mtime still forces a rescan, since a second modification
// within the same mtime granularity would otherwise be invisible
// (spec §4.G).
const racyWindow = 2 * time.Minute

// unpackedCacheSize bounds the positive-hit loose-object id cache.
const unpackedCacheSize = 4096

// unpackedIDCache is a small bounded set of loose-object ids recently
// confirmed present, used as a fast path ahead of a filesystem Stat
// (spec §4.G's UnpackedObjectCache). It is deliberately distinct from
// plumbing/cache.ObjectLRU, which caches decoded object bytes, not
// existence.
type unpackedIDCache struct {
	mu    sync.Mutex
	ll    *list.List
	index map[plumbing.Hash]*list.Element
}

func newUnpackedIDCache() *unpackedIDCache {
	return &unpackedIDCache{ll: list.New(), index: make(map[plumbing.Hash]*list.Element)}
}

func (c *unpackedIDCache) Add(id plumbing.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index[id]; ok {
		c.ll.MoveToFront(e)
		return
	}
	e := c.ll.PushFront(id)
	c.index[id] = e
	for c.ll.Len() > unpackedCacheSize {
		back := c.ll.Back()
		if back == nil {
			break
		}
		delete(c.index, back.Value.(plumbing.Hash))
		c.ll.Remove(back)
	}
}

func (c *unpackedIDCache) Has(id plumbing.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

func (c *unpackedIDCache) Remove(id plumbing.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index[id]; ok {
		delete(c.index, id)
		c.ll.Remove(e)
	}
}

// openPack is one entry in a packList snapshot: a parsed index plus
// the still-open Packfile and backing file handle, keyed by the
// pack's own checksum so a rescan can tell whether it can be reused.
// Packfile.Close does not close its ReaderAt, so this type owns that
// handle's lifetime instead.
type openPack struct {
	id   hash.ObjectId
	pf   *packfile.Packfile
	idx  *idxfile.Index
	file io.Closer
}

func (p *openPack) Close() {
	p.pf.Close()
	p.file.Close()
}

// packList is the atomically-replaced snapshot scan_packs publishes.
// lastModified is the pack directory's observed mtime at scan time,
// the value the racy-clean check compares against on later probes.
type packList struct {
	packs        []*openPack
	scannedAt    time.Time
	lastModified time.Time
}

// ObjectStorage implements storer.EncodedObjectStorer and
// storer.DeltaObjectStorer over a .git objects/ directory: packs of
// self and then of each alternate first, then loose objects of self
// and then of each alternate (spec §4.G). Grounded on the teacher's storage/filesystem/object.go,
// simplified to drop its descriptor-caching (KeepDescriptors/
// MaxOpenDescriptors) texture, which SPEC_FULL.md does not require.
type ObjectStorage struct {
	dir *dotgit.DotGit

	objectCache cache.Object
	windowCache *cache.WindowCache
	unpacked    *unpackedIDCache

	mu   sync.Mutex
	list *packList

	alternatesOnce sync.Once
	alternates     []*ObjectStorage

	log *slog.Logger
}

// NewObjectStorage returns an ObjectStorage rooted at dg, sharing the
// given decoded-object and window caches (nil selects per-instance
// defaults).
func NewObjectStorage(dg *dotgit.DotGit, objectCache cache.Object, windowCache *cache.WindowCache, opts ...ObjectStorageOption) *ObjectStorage {
	if objectCache == nil {
		objectCache = cache.NewObjectLRUDefault()
	}
	if windowCache == nil {
		windowCache = cache.NewWindowCache(cache.DefaultMaxSize)
	}
	o := &ObjectStorage{
		dir:         dg,
		objectCache: objectCache,
		windowCache: windowCache,
		unpacked:    newUnpackedIDCache(),
		log:         defaultLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewEncodedObject returns a new, empty MemoryObject ready to be
// filled and handed to SetEncodedObject.
func (o *ObjectStorage) NewEncodedObject() plumbing.EncodedObject {
	return plumbing.NewMemoryObject()
}

// SetEncodedObject writes obj as a new loose object (spec §4.F/§4.I).
// Whole objects only: the engine never writes delta-encoded loose
// objects, matching Git's own loose-object format.
func (o *ObjectStorage) SetEncodedObject(obj plumbing.EncodedObject) (plumbing.Hash, error) {
	id := obj.Hash()

	if o.hasFast(id) == nil {
		return id, nil
	}

	w, err := o.dir.NewObject()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	r, err := obj.Reader()
	if err != nil {
		w.Abort()
		return plumbing.ZeroHash, err
	}
	defer r.Close()

	if _, err := writeLooseObject(w, obj.Type(), obj.Size(), r); err != nil {
		w.Abort()
		return plumbing.ZeroHash, err
	}

	if err := w.Close(id); err != nil {
		return plumbing.ZeroHash, err
	}

	o.unpacked.Add(id)
	return id, nil
}

// hasFast answers a presence probe using only the positive-hit cache
// and the pack snapshot returned by packs() (which stats the pack
// directory and may rescan it), without probing for a loose object
// file; it returns plumbing.ErrObjectNotFound when it cannot
// positively confirm presence (a negative from this path is not
// authoritative).
func (o *ObjectStorage) hasFast(id plumbing.Hash) error {
	if o.unpacked.Has(id) {
		return nil
	}
	list, err := o.packs()
	if err == nil {
		for _, p := range list.packs {
			if p.idx.HasObject(id) {
				return nil
			}
		}
	}
	return plumbing.ErrObjectNotFound
}

// HasEncodedObject reports whether id is present, searching packs
// across self and alternates before loose across self and alternates
// (spec §4.G's two-phase ordering).
func (o *ObjectStorage) HasEncodedObject(id plumbing.Hash) error {
	if err := o.hasPacked(id); err == nil {
		return nil
	}
	return o.hasLoose(id)
}

func (o *ObjectStorage) hasPacked(id plumbing.Hash) error {
	list, err := o.packs()
	if err != nil {
		return err
	}
	for _, p := range list.packs {
		if p.idx.HasObject(id) {
			return nil
		}
	}
	for _, alt := range o.loadAlternates() {
		if err := alt.hasPacked(id); err == nil {
			return nil
		}
	}
	return plumbing.ErrObjectNotFound
}

func (o *ObjectStorage) hasLoose(id plumbing.Hash) error {
	if o.unpacked.Has(id) {
		return nil
	}
	if o.dir.HasObject(id) {
		o.unpacked.Add(id)
		return nil
	}
	o.unpacked.Remove(id)

	for _, alt := range o.loadAlternates() {
		if err := alt.hasLoose(id); err == nil {
			return nil
		}
	}
	return plumbing.ErrObjectNotFound
}

// EncodedObjectSize returns the size of id's object, however it is
// currently stored.
func (o *ObjectStorage) EncodedObjectSize(id plumbing.Hash) (int64, error) {
	obj, err := o.EncodedObject(plumbing.AnyObject, id)
	if err != nil {
		return 0, err
	}
	return obj.Size(), nil
}

// EncodedObject returns id's object, decoded to type t (or any type,
// for AnyObject), using the same pack-then-loose, self-then-alternate
// two-phase search HasEncodedObject uses. Concurrent lookups for the
// same id collapse into a single decode via objectCache.GetOrLoad
// (spec §4.C).
func (o *ObjectStorage) EncodedObject(t plumbing.ObjectType, id plumbing.Hash) (plumbing.EncodedObject, error) {
	obj, err := o.objectCache.GetOrLoad(id, func() (plumbing.EncodedObject, error) {
		obj, err := o.getFromPacked(id)
		if err == plumbing.ErrObjectNotFound {
			obj, err = o.getFromLoose(id)
		}
		return obj, err
	})
	if err != nil {
		return nil, err
	}

	if t != plumbing.AnyObject && obj.Type() != t {
		return nil, plumbing.ErrObjectNotFound
	}
	return obj, nil
}

// DeltaObject satisfies storer.DeltaObjectStorer by delegating to
// EncodedObject: it returns the fully resolved object, and a packed
// object is never returned in its delta form.
func (o *ObjectStorage) DeltaObject(t plumbing.ObjectType, id plumbing.Hash) (plumbing.EncodedObject, error) {
	return o.EncodedObject(t, id)
}

func (o *ObjectStorage) getFromPacked(id plumbing.Hash) (plumbing.EncodedObject, error) {
	list, err := o.packs()
	if err == nil {
		for _, p := range list.packs {
			if obj, err := p.pf.Get(id); err == nil {
				return obj, nil
			}
		}
	}
	for _, alt := range o.loadAlternates() {
		if obj, err := alt.getFromPacked(id); err == nil {
			return obj, nil
		}
	}
	return nil, plumbing.ErrObjectNotFound
}

func (o *ObjectStorage) getFromLoose(id plumbing.Hash) (plumbing.EncodedObject, error) {
	f, err := o.dir.Object(id)
	if err == nil {
		defer f.Close()
		obj, err := readLooseObject(id, f)
		if err == nil {
			o.unpacked.Add(id)
			return obj, nil
		}
		return nil, err
	}
	o.unpacked.Remove(id)

	for _, alt := range o.loadAlternates() {
		if obj, err := alt.getFromLoose(id); err == nil {
			return obj, nil
		}
	}
	return nil, plumbing.ErrObjectNotFound
}

// IterEncodedObjects returns an iterator over every object of type t
// (or every object, for AnyObject) across loose and packed storage in
// this directory (alternates are not expanded into iteration: callers
// that need the full transitive set iterate alternates themselves).
func (o *ObjectStorage) IterEncodedObjects(t plumbing.ObjectType) (storer.EncodedObjectIter, error) {
	var series []plumbing.EncodedObject

	ids, err := o.dir.Objects()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		obj, err := o.getFromLoose(id)
		if err != nil {
			continue
		}
		if t == plumbing.AnyObject || obj.Type() == t {
			series = append(series, obj)
		}
	}

	list, err := o.packs()
	if err != nil {
		return nil, err
	}
	for _, p := range list.packs {
		it := p.idx.Entries()
		for {
			entry, err := it.Next()
			if err != nil {
				break
			}
			obj, err := p.pf.Get(entry.Hash)
			if err != nil {
				continue
			}
			if t == plumbing.AnyObject || obj.Type() == t {
				series = append(series, obj)
			}
		}
	}

	return storer.NewEncodedObjectSliceIter(series), nil
}

func (o *ObjectStorage) loadAlternates() []*ObjectStorage {
	o.alternatesOnce.Do(func() {
		alts, err := o.dir.Alternates()
		if err != nil {
			o.log.Warn("failed to load alternates, proceeding without them", "error", err)
			return
		}
		for _, adg := range alts {
			o.alternates = append(o.alternates, NewObjectStorage(adg, o.objectCache, o.windowCache, WithLogger(o.log)))
		}
	})
	return o.alternates
}

// packs returns the current pack snapshot. Per spec §4.G's raciness
// defense, a rescan is skipped only when the pack directory's mtime
// has not moved since the last scan AND that last scan is no longer
// "racy clean" (now - lastModified > racyWindow). An unchanged mtime
// observed while still within the window does not prove nothing
// changed. A second write landing in the same mtime granularity as
// the first would be invisible, so the scan is repeated anyway.
func (o *ObjectStorage) packs() (*packList, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.list == nil {
		return o.rescanLocked()
	}

	mtime, err := o.dir.PackDirModTime()
	if err != nil {
		return nil, err
	}

	if mtime.Equal(o.list.lastModified) && time.Since(o.list.lastModified) > racyWindow {
		return o.list, nil
	}

	return o.rescanLocked()
}

func (o *ObjectStorage) rescanLocked() (*packList, error) {
	mtime, err := o.dir.PackDirModTime()
	if err != nil {
		return nil, err
	}

	ids, err := o.dir.ObjectPacks()
	if err != nil {
		return nil, err
	}

	old := map[hash.ObjectId]*openPack{}
	if o.list != nil {
		for _, p := range o.list.packs {
			old[p.id] = p
		}
	}

	hash.Sort(ids)

	nl := &packList{scannedAt: time.Now(), lastModified: mtime}

	for _, id := range ids {
		if existing, ok := old[id]; ok {
			nl.packs = append(nl.packs, existing)
			delete(old, id)
			continue
		}

		idxFile, err := o.dir.ObjectPackIdx(id)
		if err != nil {
			continue
		}
		idx, err := idxfile.NewDecoder(idxFile).Decode()
		idxFile.Close()
		if err != nil {
			continue
		}

		packFile, err := o.dir.ObjectPack(id)
		if err != nil {
			continue
		}

		pf := packfile.NewPackfile(id, packFile, idx, packfile.WithCache(o.windowCache))
		nl.packs = append(nl.packs, &openPack{id: id, pf: pf, idx: idx, file: packFile})
	}

	for _, p := range old {
		p.Close()
	}

	o.log.Debug("object directory rescanned",
		"packs_total", len(nl.packs), "packs_retired", len(old), "dir_mtime", mtime)

	o.list = nl
	return nl, nil
}
