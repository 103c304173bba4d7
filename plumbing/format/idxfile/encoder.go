package idxfile

import (
	"crypto/sha1" //nolint:gosec // index checksum format is fixed by the on-disk spec
	"encoding/binary"
	"hash"
	"io"

	objhash "github.com/gitbridge/gitodb/plumbing/hash"
)

// Encoder writes an Index to its version-2 on-disk representation.
type Encoder struct {
	w io.Writer
	h hash.Hash
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, h: sha1.New()} //nolint:gosec // matches on-disk index checksum algorithm
}

// Encode serializes idx in version-2 format, returning the total
// number of bytes written (including the trailer), and records the
// computed index checksum on idx.IdxfileChecksum.
func (e *Encoder) Encode(idx *Index) (int, error) {
	n := 0

	w, err := e.write(idxMagic)
	n += w
	if err != nil {
		return n, err
	}

	w, err = e.writeUint32(VersionSupported)
	n += w
	if err != nil {
		return n, err
	}

	for _, f := range idx.fanout {
		w, err = e.writeUint32(f)
		n += w
		if err != nil {
			return n, err
		}
	}

	for _, id := range idx.names {
		w, err = e.write(id.Bytes())
		n += w
		if err != nil {
			return n, err
		}
	}

	for _, c := range idx.crc32s {
		w, err = e.writeUint32(c)
		n += w
		if err != nil {
			return n, err
		}
	}

	for _, o := range idx.offsets {
		w, err = e.writeUint32(o)
		n += w
		if err != nil {
			return n, err
		}
	}

	for _, o := range idx.large {
		w, err = e.writeUint64(o)
		n += w
		if err != nil {
			return n, err
		}
	}

	w, err = e.write(idx.PackfileChecksum.Bytes())
	n += w
	if err != nil {
		return n, err
	}

	// The index checksum covers everything written above (but not
	// itself), so it's computed from the running hash and then written
	// straight to the destination, bypassing the hash.
	sum := e.h.Sum(nil)
	id, err := objhash.FromRaw(sum)
	if err != nil {
		return n, err
	}
	idx.IdxfileChecksum = id

	nn, err := e.w.Write(sum)
	n += nn
	if err != nil {
		return n, err
	}

	return n, nil
}

func (e *Encoder) write(p []byte) (int, error) {
	if _, err := e.h.Write(p); err != nil {
		return 0, err
	}
	return e.w.Write(p)
}

func (e *Encoder) writeUint32(v uint32) (int, error) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.write(b[:])
}

func (e *Encoder) writeUint64(v uint64) (int, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return e.write(b[:])
}
