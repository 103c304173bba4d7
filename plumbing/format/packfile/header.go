package packfile

import (
	"io"

	"github.com/gitbridge/gitodb/plumbing"
)

const (
	firstLengthBits = uint(4)
	maskFirstLength = 0x0f
	maskContinue    = 0x80
	maskLength      = 0x7f
	maskType        = 0x70
)

// objectTypeFromHeaderByte extracts the object type bits from an
// object entry's first header byte.
func objectTypeFromHeaderByte(b byte) plumbing.ObjectType {
	return plumbing.ObjectType((b & maskType) >> firstLengthBits)
}

// readVariableLengthSize decodes a Git object entry's variable-length
// "<type><size>" header: the first byte carries the type (3 bits) and
// the low 4 bits of size, with the continuation bit signaling more
// size bytes follow using 7 payload bits each.
func readVariableLengthSize(first byte, r io.ByteReader) (uint64, error) {
	size := uint64(first & maskFirstLength)

	if first&maskContinue == 0 {
		return size, nil
	}

	shift := firstLengthBits
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		size |= uint64(b&maskLength) << shift
		if b&maskContinue == 0 {
			break
		}
		shift += 7
	}
	return size, nil
}

// writeVariableLengthSize encodes t and size using the same
// variable-length scheme readVariableLengthSize decodes.
func writeVariableLengthSize(w io.ByteWriter, t plumbing.ObjectType, size uint64) error {
	first := byte(t)<<firstLengthBits | byte(size&maskFirstLength)
	size >>= firstLengthBits

	for size != 0 {
		if err := w.WriteByte(first | maskContinue); err != nil {
			return err
		}
		first = byte(size & maskLength)
		size >>= 7
	}
	return w.WriteByte(first)
}

// writeOffsetDelta encodes a negative offset-delta base reference the
// way OFS_DELTA object headers do: a base-128 big-endian-ish varint
// where all but the final byte have their continuation bit set and, on
// every byte but the last, an implicit "+1" bias is applied during
// decode (see readOffsetDelta).
func writeOffsetDelta(w io.ByteWriter, n int64) error {
	var buf [10]byte
	i := len(buf) - 1
	buf[i] = byte(n & 0x7f)
	n >>= 7
	for n != 0 {
		n--
		i--
		buf[i] = byte(n&0x7f) | 0x80
		n >>= 7
	}
	for _, b := range buf[i:] {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// readOffsetDelta decodes the OFS_DELTA negative-offset varint.
func readOffsetDelta(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	n := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		n++
		n = (n << 7) | int64(b&0x7f)
	}
	return n, nil
}
