package packfile

import (
	"errors"
)

// Delta errors.
var (
	ErrInvalidDelta = errors.New("packfile: invalid delta")
	ErrDeltaCmd     = errors.New("packfile: wrong delta command")
)

const (
	// maxCopySize is the copy-size implied when a copy-from-source
	// command's size bytes are all absent (the 0 value is reserved to
	// mean 0x10000, a quirk carried from C Git's original encoder).
	maxCopySize = 0x10000
	// minDeltaSize is the smallest a well-formed delta can be: one byte
	// each for the (single-byte LEB128) source and target sizes.
	minDeltaSize = 2
)

type deltaOffsetBit struct {
	mask  byte
	shift uint
}

var deltaOffsetBits = []deltaOffsetBit{
	{mask: 0x01, shift: 0},
	{mask: 0x02, shift: 8},
	{mask: 0x04, shift: 16},
	{mask: 0x08, shift: 24},
}

var deltaSizeBits = []deltaOffsetBit{
	{mask: 0x10, shift: 0},
	{mask: 0x20, shift: 8},
	{mask: 0x40, shift: 16},
}

// decodeLEB128 decodes a base-128 varint (7 payload bits per byte, high
// bit signals continuation) from the front of input, returning the
// value and the remaining bytes.
func decodeLEB128(input []byte) (uint64, []byte) {
	if len(input) == 0 {
		return 0, input
	}

	var num uint64
	var sz uint
	for {
		b := input[sz]
		num |= (uint64(b) & 0x7f) << (sz * 7)
		sz++
		if b&0x80 == 0 || sz == uint(len(input)) {
			break
		}
	}
	return num, input[sz:]
}

func isCopyFromSrc(cmd byte) bool {
	return cmd&0x80 != 0
}

func isCopyFromDelta(cmd byte) bool {
	return cmd&0x80 == 0 && cmd != 0
}

func decodeCopyOffset(cmd byte, delta []byte) (uint64, []byte, error) {
	var offset uint64
	for _, o := range deltaOffsetBits {
		if cmd&o.mask != 0 {
			if len(delta) == 0 {
				return 0, nil, ErrInvalidDelta
			}
			offset |= uint64(delta[0]) << o.shift
			delta = delta[1:]
		}
	}
	return offset, delta, nil
}

func decodeCopySize(cmd byte, delta []byte) (uint64, []byte, error) {
	var sz uint64
	for _, s := range deltaSizeBits {
		if cmd&s.mask != 0 {
			if len(delta) == 0 {
				return 0, nil, ErrInvalidDelta
			}
			sz |= uint64(delta[0]) << s.shift
			delta = delta[1:]
		}
	}
	if sz == 0 {
		sz = maxCopySize
	}
	return sz, delta, nil
}

func sumOverflows(a, b uint64) bool {
	return a+b < a
}

// PatchDelta applies the copy/insert commands in delta to src, the way
// Git's ofs-delta/ref-delta object bodies are decoded.
func PatchDelta(src, delta []byte) ([]byte, error) {
	if len(src) == 0 || len(delta) < minDeltaSize {
		return nil, ErrInvalidDelta
	}

	srcSz, rest := decodeLEB128(delta)
	if srcSz != uint64(len(src)) {
		return nil, ErrInvalidDelta
	}

	targetSz, rest := decodeLEB128(rest)

	dst := make([]byte, 0, targetSz)
	remaining := targetSz

	for remaining > 0 {
		if len(rest) == 0 {
			return nil, ErrInvalidDelta
		}

		cmd := rest[0]
		rest = rest[1:]

		switch {
		case isCopyFromSrc(cmd):
			var offset, sz uint64
			var err error
			offset, rest, err = decodeCopyOffset(cmd, rest)
			if err != nil {
				return nil, err
			}
			sz, rest, err = decodeCopySize(cmd, rest)
			if err != nil {
				return nil, err
			}
			if sz > remaining || sumOverflows(offset, sz) || offset+sz > srcSz {
				return nil, ErrInvalidDelta
			}
			dst = append(dst, src[offset:offset+sz]...)
			remaining -= sz

		case isCopyFromDelta(cmd):
			sz := uint64(cmd)
			if sz > remaining || uint64(len(rest)) < sz {
				return nil, ErrInvalidDelta
			}
			dst = append(dst, rest[:sz]...)
			rest = rest[sz:]
			remaining -= sz

		default:
			return nil, ErrDeltaCmd
		}
	}

	return dst, nil
}
