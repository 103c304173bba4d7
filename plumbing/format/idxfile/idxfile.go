// Package idxfile reads and writes Git pack index (.idx) files: the
// sidecar that maps an ObjectId to its offset inside the matching
// .pack file via a 256-way fan-out table over a sorted id array.
package idxfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // index checksum format is fixed by the on-disk spec
	"errors"
	"io"
	"sort"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

const (
	// VersionSupported is the idx format version this package writes.
	VersionSupported = 2

	fanoutEntries = 256
	fanoutSize    = fanoutEntries * 4
	headerSize    = 8
	crcSize       = 4
	offset32Size  = 4
	offset64Size  = 8

	isO64Mask = uint32(1) << 31
)

var idxMagic = []byte{0xff, 't', 'O', 'c'}

var (
	// ErrBadSignature is returned when the file doesn't start with the
	// version-2 magic and also doesn't parse as a version-1 fan-out.
	ErrBadSignature = errors.New("idxfile: malformed index signature")
	// ErrUnsupportedVersion is returned for an idx version other than 1 or 2.
	ErrUnsupportedVersion = errors.New("idxfile: unsupported index version")
	// ErrInvalidChecksum is returned by VerifyChecksum on mismatch.
	ErrInvalidChecksum = errors.New("idxfile: checksum mismatch")
	// ErrObjectNotFound mirrors plumbing.ErrObjectNotFound without an
	// import cycle; storage/filesystem translates it at the boundary.
	ErrObjectNotFound = errors.New("idxfile: object not found")
)

// Index is an in-memory, fully-parsed version of a .pack's .idx file.
type Index struct {
	Version uint32

	fanout  [fanoutEntries]uint32
	names   []hash.ObjectId // sorted ascending
	crc32s  []uint32
	offsets []uint32
	large   []uint64 // overflow table for offsets >= 2^31

	PackfileChecksum  hash.ObjectId
	IdxfileChecksum   hash.ObjectId
}

// NewEmptyIndex returns an Index with no entries and an all-zero
// fan-out table (see Add for what filling it by hand involves).
func NewEmptyIndex() *Index {
	return &Index{Version: VersionSupported}
}

// Add registers one (id, offset, crc) triple. Add appends in call
// order: it neither sorts the ids nor fills the fan-out table, and the
// Encoder does not do so either, so lookups and encoding are only
// correct if ids are added in ascending order and the fan-out is
// filled by other means. For building an index from scratch (pack
// writer/inserter use), use NewIndexFromEntries instead, which sorts
// and fills the fan-out.
func (idx *Index) Add(id hash.ObjectId, offset uint64, crc uint32) {
	idx.names = append(idx.names, id)
	idx.crc32s = append(idx.crc32s, crc)
	if offset >= uint64(isO64Mask) {
		idx.offsets = append(idx.offsets, isO64Mask|uint32(len(idx.large)))
		idx.large = append(idx.large, offset)
	} else {
		idx.offsets = append(idx.offsets, uint32(offset))
	}
}

// entry is the (id, offset, crc) triple used while building an index.
type entry struct {
	id     hash.ObjectId
	offset uint64
	crc    uint32
}

// IndexEntryInput is the exported spelling of entry, so callers in
// other packages (the pack encoder, the inserter) can hold a slice of
// entries built via NewEntry without reaching into unexported fields.
type IndexEntryInput = entry

// NewIndexFromEntries builds a complete, queryable Index from an
// unordered set of entries (used by the pack-stream inserter once a
// whole pack has been scanned).
func NewIndexFromEntries(entries []IndexEntryInput, packChecksum hash.ObjectId) *Index {
	sort.Slice(entries, func(i, j int) bool { return entries[i].id.Less(entries[j].id) })

	idx := NewEmptyIndex()
	idx.PackfileChecksum = packChecksum

	for _, e := range entries {
		idx.Add(e.id, e.offset, e.crc)
	}

	last := 0
	for i, e := range idx.names {
		b := int(e[0])
		for b > last {
			idx.fanout[last] = uint32(i)
			last++
		}
	}
	for ; last < fanoutEntries; last++ {
		idx.fanout[last] = uint32(len(idx.names))
	}

	return idx
}

// NewEntry is exported so storage/filesystem can build entries without
// reaching into unexported fields.
func NewEntry(id hash.ObjectId, offset uint64, crc uint32) IndexEntryInput {
	return IndexEntryInput{id: id, offset: offset, crc: crc}
}

// Count returns the number of objects the index describes.
func (idx *Index) Count() int { return len(idx.names) }

// FindOffset returns the pack offset for id, or ErrObjectNotFound.
func (idx *Index) FindOffset(id hash.ObjectId) (uint64, error) {
	i, ok := idx.search(id)
	if !ok {
		return 0, ErrObjectNotFound
	}
	return idx.offsetAt(i), nil
}

func (idx *Index) offsetAt(i int) uint64 {
	o := idx.offsets[i]
	if o&isO64Mask != 0 {
		return idx.large[o&^isO64Mask]
	}
	return uint64(o)
}

// HasObject reports whether id is present in the index.
func (idx *Index) HasObject(id hash.ObjectId) bool {
	_, ok := idx.search(id)
	return ok
}

// FindCRC32 returns the CRC-32 recorded for id's packed representation.
func (idx *Index) FindCRC32(id hash.ObjectId) (uint32, error) {
	i, ok := idx.search(id)
	if !ok {
		return 0, ErrObjectNotFound
	}
	return idx.crc32s[i], nil
}

// search performs the fan-out + binary-search lookup described in
// spec §4.D: consult the fan-out table for the range of entries
// sharing id's first byte, then bisect.
func (idx *Index) search(id hash.ObjectId) (int, bool) {
	b := id[0]
	lo := uint32(0)
	if b > 0 {
		lo = idx.fanout[b-1]
	}
	hi := idx.fanout[b]

	i := sort.Search(int(hi-lo), func(i int) bool {
		return !idx.names[lo+uint32(i)].Less(id)
	})
	pos := int(lo) + i
	if pos < int(hi) && idx.names[pos] == id {
		return pos, true
	}
	return 0, false
}

// Resolve fills out with every id whose hex representation begins with
// prefix, up to limit entries, in ascending order. It stops as soon as
// len(out) would exceed limit, matching spec's "stop when the limit is
// exceeded" contract (returning ErrResolveTooMany in that case so the
// caller knows the result is incomplete).
var ErrResolveTooMany = errors.New("idxfile: more than limit objects match the given prefix")

func (idx *Index) Resolve(prefix hash.AbbreviatedObjectId, limit int, out *[]hash.ObjectId) error {
	// A single fan-out bucket only narrows the search by prefix's
	// first byte (two hex digits); scanning the whole bucket and letting
	// PrefixCompare do the exact match is simplest and still O(bucket
	// size), which fan-out already bounds to ~1/256th of the index.
	lo, hi := idx.bucketRange(prefix)

	for i := lo; i < hi; i++ {
		if prefix.PrefixCompare(idx.names[i]) == 0 {
			if len(*out) >= limit {
				return ErrResolveTooMany
			}
			*out = append(*out, idx.names[i])
		}
	}
	return nil
}

// bucketRange returns the fan-out range of entries whose first byte
// could possibly match prefix. A prefix of a single hex digit does not
// fix the first byte, so it widens to the full table.
func (idx *Index) bucketRange(prefix hash.AbbreviatedObjectId) (lo, hi uint32) {
	if prefix.Len() < 2 {
		return 0, uint32(len(idx.names))
	}
	b := prefix.FirstByte()
	if b > 0 {
		lo = idx.fanout[b-1]
	}
	hi = idx.fanout[b]
	return lo, hi
}

// Entries returns an iterator over every (id, offset, crc) triple in
// ascending id order.
func (idx *Index) Entries() *EntryIter {
	return &EntryIter{idx: idx}
}

// IndexEntry is one row of the index.
type IndexEntry struct {
	Hash   hash.ObjectId
	Offset uint64
	CRC32  uint32
}

// EntryIter walks an Index's entries in ascending order.
type EntryIter struct {
	idx *Index
	pos int
}

func (it *EntryIter) Next() (IndexEntry, error) {
	if it.pos >= len(it.idx.names) {
		return IndexEntry{}, io.EOF
	}
	e := IndexEntry{
		Hash:   it.idx.names[it.pos],
		Offset: it.idx.offsetAt(it.pos),
		CRC32:  it.idx.crc32s[it.pos],
	}
	it.pos++
	return e, nil
}

func (it *EntryIter) Close() {}

// VerifyChecksum recomputes the SHA-1 over the index body (everything
// but the trailing 20-byte index checksum) of raw and compares it
// against raw's own trailing 20 bytes.
func (idx *Index) VerifyChecksum(raw []byte) error {
	if len(raw) < hash.Size {
		return ErrInvalidChecksum
	}
	body := raw[:len(raw)-hash.Size]
	sum := sha1.Sum(body) //nolint:gosec // matches on-disk index checksum algorithm
	want := raw[len(raw)-hash.Size:]
	if !bytes.Equal(sum[:], want) {
		return ErrInvalidChecksum
	}
	return nil
}
