package packfile

import (
	"bytes"
	"hash/crc32"
	"io"

	"github.com/gitbridge/gitodb/internal/zlibpool"
	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

// Encoder writes a pack stream one full object at a time. It never
// emits OFS_DELTA/REF_DELTA entries: choosing which objects to
// delta-compress against which bases is a write-time heuristic spec
// explicitly excludes (see SPEC_FULL.md Non-goals), so every object
// this Encoder writes is stored whole.
type Encoder struct {
	w        io.Writer
	packHash interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
	count   uint32
	written uint32

	// Entries accumulates (hash, offset, crc32) triples as objects are
	// encoded, ready to hand to idxfile.NewIndexFromEntries once
	// Close is called.
	Entries []indexEntry

	offset int64
}

type indexEntry struct {
	Hash   hash.ObjectId
	Offset uint64
	CRC32  uint32
}

// NewEncoder prepares an Encoder that will write count objects to w.
func NewEncoder(w io.Writer, count uint32) (*Encoder, error) {
	e := &Encoder{w: w, packHash: hash.New(), count: count}
	if err := e.writeHeader(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) write(p []byte) error {
	if _, err := e.packHash.Write(p); err != nil {
		return err
	}
	n, err := e.w.Write(p)
	e.offset += int64(n)
	return err
}

func (e *Encoder) writeHeader() error {
	if err := e.write(packSignature); err != nil {
		return err
	}
	if err := e.write(beUint32(VersionSupported)); err != nil {
		return err
	}
	return e.write(beUint32(e.count))
}

func beUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// byteWriterCounter wraps a crc32-tracking buffer so writeVariableLengthSize
// (which wants an io.ByteWriter) can be used while also capturing the
// bytes for the CRC and the running pack hash.
type byteWriterCounter struct {
	buf *bytes.Buffer
}

func (b byteWriterCounter) WriteByte(c byte) error {
	return b.buf.WriteByte(c)
}

// WriteObject appends one full object to the pack, returning its
// offset. content is the object's raw (undeflated) payload.
func (e *Encoder) WriteObject(t plumbing.ObjectType, content []byte) (int64, error) {
	offset := e.offset

	var buf bytes.Buffer
	if err := writeVariableLengthSize(byteWriterCounter{&buf}, t, uint64(len(content))); err != nil {
		return 0, err
	}

	deflated, err := zlibpool.Deflate(content, 6)
	if err != nil {
		return 0, err
	}

	crc := crc32.NewIEEE()
	crc.Write(buf.Bytes())
	crc.Write(deflated)

	if err := e.write(buf.Bytes()); err != nil {
		return 0, err
	}
	if err := e.write(deflated); err != nil {
		return 0, err
	}

	id := hash.New()
	id.Write(t.Bytes())
	id.Write([]byte{' '})
	id.Write([]byte(itoaEncoder(int64(len(content)))))
	id.Write([]byte{0})
	id.Write(content)
	sum, err := hash.FromRaw(id.Sum(nil))
	if err != nil {
		return 0, err
	}

	e.Entries = append(e.Entries, indexEntry{Hash: sum, Offset: uint64(offset), CRC32: crc.Sum32()})
	e.written++

	return offset, nil
}

func itoaEncoder(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Close writes the trailing pack checksum and returns it.
func (e *Encoder) Close() (hash.ObjectId, error) {
	sum := e.packHash.Sum(nil)
	id, err := hash.FromRaw(sum)
	if err != nil {
		return hash.ZeroHash, err
	}
	if _, err := e.w.Write(sum); err != nil {
		return hash.ZeroHash, err
	}
	return id, nil
}
