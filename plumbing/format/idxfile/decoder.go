package idxfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

// Decoder parses a .idx file (version 1 or 2, per spec §3) into an
// in-memory Index.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads a full .idx stream and returns the parsed Index.
func (d *Decoder) Decode() (*Index, error) {
	br := bufio.NewReader(d.r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, ErrBadSignature
	}

	if bytesEqual(magic[:], idxMagic) {
		return d.decodeV2(br)
	}

	// Version 1: no magic, the first 4 bytes already read are the
	// first fan-out entry.
	return d.decodeV1(br, magic[:])
}

func (d *Decoder) decodeV1(br *bufio.Reader, firstFanout []byte) (*Index, error) {
	idx := &Index{Version: 1}

	idx.fanout[0] = binary.BigEndian.Uint32(firstFanout)
	for i := 1; i < fanoutEntries; i++ {
		v, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		idx.fanout[i] = v
	}

	count := int(idx.fanout[fanoutEntries-1])
	idx.names = make([]hash.ObjectId, count)
	idx.offsets = make([]uint32, count)
	idx.crc32s = make([]uint32, count) // v1 has no CRCs; left zero

	for i := 0; i < count; i++ {
		offset, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		var raw [hash.Size]byte
		if _, err := io.ReadFull(br, raw[:]); err != nil {
			return nil, ErrBadSignature
		}
		id, err := hash.FromRaw(raw[:])
		if err != nil {
			return nil, err
		}
		idx.names[i] = id
		idx.offsets[i] = offset
	}

	return idx, d.readTrailer(br, idx)
}

func (d *Decoder) decodeV2(br *bufio.Reader) (*Index, error) {
	version, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	if version != 2 {
		return nil, ErrUnsupportedVersion
	}

	idx := &Index{Version: 2}

	for i := 0; i < fanoutEntries; i++ {
		v, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		idx.fanout[i] = v
	}

	count := int(idx.fanout[fanoutEntries-1])

	idx.names = make([]hash.ObjectId, count)
	for i := 0; i < count; i++ {
		var raw [hash.Size]byte
		if _, err := io.ReadFull(br, raw[:]); err != nil {
			return nil, ErrBadSignature
		}
		id, err := hash.FromRaw(raw[:])
		if err != nil {
			return nil, err
		}
		idx.names[i] = id
	}

	idx.crc32s = make([]uint32, count)
	for i := 0; i < count; i++ {
		v, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		idx.crc32s[i] = v
	}

	idx.offsets = make([]uint32, count)
	var large []uint64
	for i := 0; i < count; i++ {
		v, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		idx.offsets[i] = v
	}

	numLarge := 0
	for _, o := range idx.offsets {
		if o&isO64Mask != 0 {
			if n := int(o&^isO64Mask) + 1; n > numLarge {
				numLarge = n
			}
		}
	}
	large = make([]uint64, numLarge)
	for i := 0; i < numLarge; i++ {
		v, err := readUint64(br)
		if err != nil {
			return nil, err
		}
		large[i] = v
	}
	idx.large = large

	return idx, d.readTrailer(br, idx)
}

func (d *Decoder) readTrailer(br *bufio.Reader, idx *Index) error {
	var packSum, idxSum [hash.Size]byte
	if _, err := io.ReadFull(br, packSum[:]); err != nil {
		return ErrBadSignature
	}
	if _, err := io.ReadFull(br, idxSum[:]); err != nil {
		return ErrBadSignature
	}

	id, err := hash.FromRaw(packSum[:])
	if err != nil {
		return err
	}
	idx.PackfileChecksum = id

	id, err = hash.FromRaw(idxSum[:])
	if err != nil {
		return err
	}
	idx.IdxfileChecksum = id

	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, ErrBadSignature
		}
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, ErrBadSignature
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
