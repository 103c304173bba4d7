package packfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/cache"
	"github.com/gitbridge/gitodb/plumbing/format/idxfile"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

// MaxDeltaDepth bounds how many times a delta chain may be followed
// before resolution gives up; it defends against cyclic or
// pathologically long chains in a corrupt pack.
const MaxDeltaDepth = 50

var (
	// ErrMaxDeltaDepth is returned when resolving an object would
	// require following more than MaxDeltaDepth delta links.
	ErrMaxDeltaDepth = errors.New("packfile: max delta depth exceeded")
	// ErrMissingBase is returned when a delta's base object cannot be
	// located, either in this pack or (for REF_DELTA) via the lookup
	// callback.
	ErrMissingBase = errors.New("packfile: missing delta base object")
)

// Packfile provides random-access, delta-resolving reads over a pack
// whose layout is described by idx. It holds the pack open for its
// entire lifetime (Fresh/Open in spec terms); callers are responsible
// for closing it exactly once.
type Packfile struct {
	id  hash.ObjectId
	ra  io.ReaderAt
	idx *idxfile.Index

	// resolveRef looks up a REF_DELTA base by hash when it isn't
	// itself present in this pack (e.g. a thin pack, or a base stored
	// loose). Optional; nil means REF_DELTA bases must be in-pack.
	resolveRef func(hash.ObjectId) (plumbing.EncodedObject, error)

	cache *cache.WindowCache

	closed bool
}

// Option configures a Packfile at construction time.
type Option func(*Packfile)

// WithExternalBaseResolver supplies a fallback used when a REF_DELTA's
// base hash isn't present in this pack's own index.
func WithExternalBaseResolver(f func(hash.ObjectId) (plumbing.EncodedObject, error)) Option {
	return func(p *Packfile) { p.resolveRef = f }
}

// WithCache installs an object cache used to memoize resolved delta
// bases across Get calls (spec §4.C, WindowCache). Entries are keyed
// by (pack id, offset), so a single WindowCache instance may safely be
// shared across every Packfile opened from the same ObjectStorage.
func WithCache(c *cache.WindowCache) Option {
	return func(p *Packfile) { p.cache = c }
}

// NewPackfile opens a pack for random access given its identity (the
// pack's own trailing checksum, used as the WindowCache partition
// key), its already-loaded index, and a ReaderAt over the raw pack
// bytes.
func NewPackfile(id hash.ObjectId, ra io.ReaderAt, idx *idxfile.Index, opts ...Option) *Packfile {
	p := &Packfile{id: id, ra: ra, idx: idx}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = cache.NewWindowCache(cache.DefaultMaxSize)
	}
	return p
}

// Close marks the Packfile unusable and evicts its entries from the
// shared WindowCache (spec §5: WindowCache.remove_all(pack) must run
// before a PackFile closes, so a later pack reusing the same byte
// offsets never observes a stale decoded object). It does not close
// the underlying ReaderAt, which the caller (ObjectDirectory) owns.
func (p *Packfile) Close() error {
	p.closed = true
	p.cache.RemoveAll(p.id)
	return nil
}

// HasObject reports whether id is present in this pack's index.
func (p *Packfile) HasObject(id hash.ObjectId) bool {
	return p.idx.HasObject(id)
}

// GetSizeByOffset returns an object's final (post-delta) size and
// type, resolving its base chain if needed but discarding the decoded
// bytes rather than returning them.
func (p *Packfile) GetSizeByOffset(offset int64) (int64, plumbing.ObjectType, error) {
	eh, err := p.readEntryHeaderAt(offset)
	if err != nil {
		return 0, 0, err
	}
	if !eh.Type.IsDelta() {
		return eh.Size, eh.Type, nil
	}

	obj, err := p.decodeAt(offset, 0)
	if err != nil {
		return 0, 0, err
	}
	return obj.Size(), obj.Type(), nil
}

// Get resolves and returns the full object stored at id.
func (p *Packfile) Get(id hash.ObjectId) (plumbing.EncodedObject, error) {
	offset, err := p.idx.FindOffset(id)
	if err != nil {
		return nil, plumbing.ErrObjectNotFound
	}
	return p.GetByOffset(int64(offset))
}

// GetByOffset resolves and returns the full object stored at offset,
// following any delta chain to completion.
func (p *Packfile) GetByOffset(offset int64) (plumbing.EncodedObject, error) {
	return p.decodeAt(offset, 0)
}

// decodeAt fully decodes the object entry at offset, recursing through
// its delta chain (if any) up to MaxDeltaDepth. Every decode, whether
// a top-level GetByOffset or a recursive delta-base lookup, goes
// through WindowCache.GetOrLoad so concurrent misses on the same
// (pack, offset) collapse into a single decode (spec §4.C).
func (p *Packfile) decodeAt(offset int64, depth int) (plumbing.EncodedObject, error) {
	if depth > MaxDeltaDepth {
		return nil, ErrMaxDeltaDepth
	}

	return p.cache.GetOrLoad(p.id, offset, func() (plumbing.EncodedObject, error) {
		eh, body, err := p.readEntryAt(offset)
		if err != nil {
			return nil, err
		}

		if !eh.Type.IsDelta() {
			return plumbing.NewMemoryObjectWithContent(eh.Type, body), nil
		}

		base, err := p.resolveBase(eh, depth)
		if err != nil {
			return nil, err
		}

		baseReader, err := base.Reader()
		if err != nil {
			return nil, err
		}
		baseBytes, err := io.ReadAll(baseReader)
		baseReader.Close()
		if err != nil {
			return nil, err
		}

		patched, err := PatchDelta(baseBytes, body)
		if err != nil {
			return nil, fmt.Errorf("packfile: resolving delta at offset %d: %w", offset, err)
		}

		return plumbing.NewMemoryObjectWithContent(base.Type(), patched), nil
	})
}

// resolveBase locates and fully decodes a delta entry's base object.
func (p *Packfile) resolveBase(eh EntryHeader, depth int) (plumbing.EncodedObject, error) {
	if eh.Type == plumbing.OFSDeltaObject {
		return p.decodeAt(eh.OffsetReference, depth+1)
	}

	// REF_DELTA: prefer resolving within this pack (common case for a
	// self-contained pack); fall back to the external resolver for
	// thin packs whose base lives elsewhere.
	if offset, err := p.idx.FindOffset(eh.HashReference); err == nil {
		return p.decodeAt(int64(offset), depth+1)
	}

	if p.resolveRef != nil {
		return p.resolveRef(eh.HashReference)
	}

	return nil, ErrMissingBase
}

// readEntryHeaderAt reads only the header framing of the entry at offset.
func (p *Packfile) readEntryHeaderAt(offset int64) (EntryHeader, error) {
	eh, _, _, err := p.scanEntryAt(offset)
	return eh, err
}

// readEntryAt reads the header and inflated body of the entry at offset.
func (p *Packfile) readEntryAt(offset int64) (EntryHeader, []byte, error) {
	eh, body, _, err := p.scanEntryAt(offset)
	return eh, body, err
}

func (p *Packfile) scanEntryAt(offset int64) (EntryHeader, []byte, uint32, error) {
	s := NewScanner(io.NewSectionReader(p.ra, offset, 1<<62))
	eh, body, crc, err := s.NextEntry()
	if err != nil {
		return EntryHeader{}, nil, 0, fmt.Errorf("packfile: reading entry at offset %d: %w", offset, err)
	}
	eh.Offset = offset
	return eh, body, crc, nil
}
