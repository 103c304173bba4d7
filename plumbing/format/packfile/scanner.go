// Package packfile implements component E of the object storage
// engine: reading, scanning, and delta-resolving Git pack files.
//
// A pack file is a 12-byte header ("PACK", a version, an object
// count), followed by that many object entries, followed by a
// trailing 20-byte SHA-1 over everything before it:
//
//	+------------------------------------------------+
//	| "PACK" | version (4) | object count (4)          |
//	+------------------------------------------------+
//	| object entry 1 ... object entry N                |
//	+------------------------------------------------+
//	| SHA-1 checksum (20 bytes)                        |
//	+------------------------------------------------+
//
// Each object entry is a variable-length type+size header followed by
// a zlib-deflated body: the object's full content for non-delta types,
// or an OFS_DELTA/REF_DELTA patch against a base object for the two
// delta types.
package packfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	gohash "hash"
	"hash/crc32"
	"io"

	"github.com/gitbridge/gitodb/internal/zlibpool"
	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

var (
	// ErrChecksumMismatch is returned by Checksum when the trailing
	// 20-byte SHA-1 doesn't match the hash of everything read before it.
	ErrChecksumMismatch = errors.New("packfile: checksum mismatch")
)

// VersionSupported is the only pack version this package reads/writes.
const VersionSupported = 2

var packSignature = []byte{'P', 'A', 'C', 'K'}

var (
	// ErrBadSignature is returned when a stream doesn't start with "PACK".
	ErrBadSignature = errors.New("packfile: malformed pack signature")
	// ErrUnsupportedVersion is returned for a pack version other than 2.
	ErrUnsupportedVersion = errors.New("packfile: unsupported pack version")
	// ErrPackfileCorrupt is returned for any structural decode failure.
	ErrPackfileCorrupt = errors.New("packfile: corrupt pack data")
	// ErrInvalidObjectType is returned for an object header naming a
	// type outside commit/tree/blob/tag/ofs-delta/ref-delta.
	ErrInvalidObjectType = errors.New("packfile: invalid object type")
)

// Header is the pack's 12-byte preamble.
type Header struct {
	Version    uint32
	ObjectsQty uint32
}

// EntryHeader describes one object entry's framing: its type, its
// declared (inflated) size, its starting offset in the pack, and
// (for delta types) the information needed to locate the base.
type EntryHeader struct {
	Type     plumbing.ObjectType
	Size     int64
	Offset   int64
	// ContentOffset is where the zlib-compressed body begins.
	ContentOffset int64

	// OffsetReference is the base object's offset, for OFS_DELTA.
	OffsetReference int64
	// HashReference is the base object's id, for REF_DELTA.
	HashReference hash.ObjectId
}

// Scanner reads a pack stream sequentially: Header, then one
// EntryHeader (with compressed body) per call to NextEntry, then a
// trailing checksum from Checksum.
type Scanner struct {
	r        *bufio.Reader
	crc      crc32Hash
	packHash gohash.Hash // running SHA-1 over every byte read so far

	read int64 // bytes consumed from r, for offset bookkeeping
}

// crc32Hash narrows hash.Hash32 to what Scanner needs, named locally
// so this file doesn't need a second import named "hash" alongside
// plumbing/hash.
type crc32Hash interface {
	Write(p []byte) (int, error)
	Sum32() uint32
	Reset()
}

// NewScanner prepares r for a single top-to-bottom pass over a pack
// stream. r need not be seekable; Packfile wraps Scanner with an
// io.ReaderAt for random access re-scans.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r), crc: crc32.NewIEEE(), packHash: hash.New()}
}

func (s *Scanner) readByte() (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	s.read++
	s.crc.Write([]byte{b})
	s.packHash.Write([]byte{b})
	return b, nil
}

func (s *Scanner) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	s.read += int64(n)
	s.crc.Write(buf)
	s.packHash.Write(buf)
	return buf, nil
}

// Header reads and validates the 12-byte pack preamble.
func (s *Scanner) Header() (Header, error) {
	start, err := s.readN(4)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if !bytes.Equal(start, packSignature) {
		return Header{}, ErrBadSignature
	}

	version, err := s.readUint32()
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}
	if version != VersionSupported {
		return Header{}, ErrUnsupportedVersion
	}

	count, err := s.readUint32()
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}

	return Header{Version: version, ObjectsQty: count}, nil
}

func (s *Scanner) readUint32() (uint32, error) {
	b, err := s.readN(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// NextEntry reads one object entry's header and its full inflated
// body. The returned crc32 covers the entry's compressed bytes
// (header + deflated body), matching the value a .idx file records.
func (s *Scanner) NextEntry() (EntryHeader, []byte, uint32, error) {
	s.crc.Reset()
	offset := s.read

	first, err := s.readByte()
	if err != nil {
		return EntryHeader{}, nil, 0, err
	}

	typ := objectTypeFromHeaderByte(first)
	size, err := readVariableLengthSize(first, byteReaderFunc(s.readByte))
	if err != nil {
		return EntryHeader{}, nil, 0, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}

	eh := EntryHeader{Type: typ, Size: int64(size), Offset: offset}

	switch typ {
	case plumbing.OFSDeltaObject:
		back, err := readOffsetDelta(byteReaderFunc(s.readByte))
		if err != nil {
			return EntryHeader{}, nil, 0, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
		}
		eh.OffsetReference = offset - back
	case plumbing.REFDeltaObject:
		raw, err := s.readN(hash.Size)
		if err != nil {
			return EntryHeader{}, nil, 0, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
		}
		id, err := hash.FromRaw(raw)
		if err != nil {
			return EntryHeader{}, nil, 0, err
		}
		eh.HashReference = id
	case plumbing.CommitObject, plumbing.TreeObject, plumbing.BlobObject, plumbing.TagObject:
	default:
		return EntryHeader{}, nil, 0, ErrInvalidObjectType
	}

	eh.ContentOffset = s.read

	zr, err := zlibpool.GetReader(crcTrackingReader{s})
	if err != nil {
		return EntryHeader{}, nil, 0, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}
	body, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		return EntryHeader{}, nil, 0, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}
	if int64(len(body)) != eh.Size {
		return EntryHeader{}, nil, 0, fmt.Errorf("%w: inflated size mismatch", ErrPackfileCorrupt)
	}

	return eh, body, s.crc.Sum32(), nil
}

// crcTrackingReader feeds bytes consumed by the zlib reader through
// the scanner's running CRC and offset counter, so NextEntry's crc32
// covers the compressed bytes even though zlib itself is what reads
// them off the underlying stream.
type crcTrackingReader struct {
	s *Scanner
}

func (c crcTrackingReader) Read(p []byte) (int, error) {
	n, err := c.s.r.Read(p)
	if n > 0 {
		c.s.read += int64(n)
		c.s.crc.Write(p[:n])
		c.s.packHash.Write(p[:n])
	}
	return n, err
}

// ReadByte lets zlib read the stream byte by byte instead of wrapping
// it in its own buffer, which would consume bytes past the end of the
// compressed entry.
func (c crcTrackingReader) ReadByte() (byte, error) {
	return c.s.readByte()
}

// Checksum reads the trailing 20-byte pack checksum and verifies it
// against the SHA-1 of every byte read before it.
func (s *Scanner) Checksum() (hash.ObjectId, error) {
	want := s.packHash.Sum(nil)

	buf := make([]byte, hash.Size)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return hash.ZeroHash, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}
	s.read += int64(hash.Size)

	if !bytes.Equal(want, buf) {
		return hash.ZeroHash, ErrChecksumMismatch
	}
	return hash.FromRaw(buf)
}

type byteReaderFunc func() (byte, error)

func (f byteReaderFunc) ReadByte() (byte, error) { return f() }
