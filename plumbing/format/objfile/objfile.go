// Package objfile reads and writes the loose object format: the zlib
// deflation of "<kind> <size>\0<payload>".
package objfile

import (
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gitbridge/gitodb/internal/zlibpool"
	"github.com/gitbridge/gitodb/plumbing"
)

// DefaultCompression is the level NewWriter passes to NewWriterLevel.
// zlibpool.GetWriter does not apply it, so output is compressed at
// zlib's default level.
const DefaultCompression = 1

// MaxObjectSize bounds how large a single loose object payload may be
// (2^31 bytes, matching spec's "payload.len <= 2^31" invariant).
const MaxObjectSize = 1 << 31

var (
	// ErrCorruptHeader is returned when the inflated leading bytes
	// don't parse as "<kind> <size>\0".
	ErrCorruptHeader = errors.New("objfile: corrupt object header")
	// ErrSizeMismatch is returned when the header's declared size
	// disagrees with the number of payload bytes actually present.
	ErrSizeMismatch = errors.New("objfile: declared size does not match payload")
)

// Reader inflates a loose object stream and exposes its header and
// payload.
type Reader struct {
	zr   *zlibpool.Reader
	typ  plumbing.ObjectType
	size int64
	read int64
}

// NewReader wraps src, which must be positioned at the start of a
// loose object's zlib stream.
func NewReader(src io.Reader) (*Reader, error) {
	zr, err := zlibpool.GetReader(src)
	if err != nil {
		return nil, err
	}

	r := &Reader{zr: zr}
	if err := r.readHeader(); err != nil {
		zr.Close()
		return nil, err
	}

	return r, nil
}

// readByte reads a single inflated byte, used only while scanning the
// small fixed header so no bytes are ever over-read past it.
func (r *Reader) readByte() (byte, error) {
	var b [1]byte
	n, err := r.zr.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return 0, err
}

func (r *Reader) readHeader() error {
	typ := make([]byte, 0, 8)
	for {
		b, err := r.readByte()
		if err != nil {
			return ErrCorruptHeader
		}
		if b == ' ' {
			break
		}
		typ = append(typ, b)
	}

	size := make([]byte, 0, 19)
	for {
		b, err := r.readByte()
		if err != nil {
			return ErrCorruptHeader
		}
		if b == 0 {
			break
		}
		size = append(size, b)
	}

	t, err := plumbing.ParseObjectType(string(typ))
	if err != nil {
		return ErrCorruptHeader
	}

	n, err := strconv.ParseInt(string(size), 10, 64)
	if err != nil || n < 0 {
		return ErrCorruptHeader
	}

	r.typ = t
	r.size = n
	return nil
}

// Header returns the object's type and declared size.
func (r *Reader) Header() (plumbing.ObjectType, int64, error) {
	return r.typ, r.size, nil
}

// Read implements io.Reader over the payload bytes following the
// header.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.zr.Read(p)
	r.read += int64(n)
	return n, err
}

// Close validates that exactly size bytes were read and releases the
// underlying zlib reader. Callers that abandon a Reader early (e.g.
// LargeObjectThreshold collaborators peeking only the header) may
// still call Close safely when they have read no payload bytes; the
// size check applies as soon as any payload byte has been read.
func (r *Reader) Close() error {
	err := r.zr.Close()
	if err != nil {
		return err
	}
	if r.read > 0 && r.read != r.size {
		return ErrSizeMismatch
	}
	return nil
}

// Writer deflates "<kind> <size>\0<payload>" to dst.
type Writer struct {
	size    int64
	written int64
	header  bool
	zw      *zlib.Writer
}

// NewWriter returns a Writer using DefaultCompression.
func NewWriter(dst io.Writer) *Writer {
	return NewWriterLevel(dst, DefaultCompression)
}

// NewWriterLevel returns a Writer whose zlib writer comes from
// zlibpool.GetWriter(dst, level); that pool does not apply level, so
// output is compressed at zlib's default level whatever level is.
func NewWriterLevel(dst io.Writer, level int) *Writer {
	return &Writer{zw: zlibpool.GetWriter(dst, level)}
}

// WriteHeader writes the "<kind> <size>\0" prefix. It must be called
// exactly once, before any calls to Write.
func (w *Writer) WriteHeader(t plumbing.ObjectType, size int64) error {
	if w.header {
		return errors.New("objfile: header already written")
	}
	if size < 0 || size > MaxObjectSize {
		return errors.New("objfile: invalid object size")
	}

	w.size = size
	w.header = true

	if _, err := fmt.Fprintf(w.zw, "%s %d\x00", t, size); err != nil {
		return err
	}
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if !w.header {
		return 0, errors.New("objfile: header not written")
	}
	n, err := w.zw.Write(p)
	w.written += int64(n)
	return n, err
}

// Close flushes and closes the zlib stream. It errors if fewer or more
// bytes were written than declared in WriteHeader.
func (w *Writer) Close() error {
	err := w.zw.Close()
	zlibpool.PutWriter(w.zw)
	if err != nil {
		return err
	}
	if w.written != w.size {
		return ErrSizeMismatch
	}
	return nil
}
