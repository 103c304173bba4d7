// Package zlibpool wraps compress/zlib readers and writers in
// sync.Pools, matching the teacher's utils/sync package. Bounded
// pooling keeps the per-object inflate/deflate cost low when many
// loose objects or pack entries are processed in a row.
package zlibpool

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"sync"
)

// ErrCorruptStream is returned when the zlib stream itself is
// malformed (bad header, bad checksum, truncated data).
var ErrCorruptStream = errors.New("zlibpool: corrupt zlib stream")

var zlibInit = []byte{0x78, 0x9c, 0x01, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}

var readers = sync.Pool{
	New: func() any {
		r, _ := zlib.NewReader(bytes.NewReader(zlibInit))
		return r.(zlib.Resetter)
	},
}

var writers = sync.Pool{
	New: func() any {
		return zlib.NewWriter(nil)
	},
}

// Reader is a poolable zlib reader; call Close to both close the
// underlying stream and return it to the pool.
type Reader struct {
	rc io.ReadCloser
	z  zlib.Resetter
}

// GetReader returns a Reader wrapping r, reusing pooled zlib state
// where possible. Errors are ErrCorruptStream-wrapped on read.
func GetReader(r io.Reader) (*Reader, error) {
	z := readers.Get().(zlib.Resetter)
	if err := z.Reset(r, nil); err != nil {
		readers.Put(z)
		return nil, err
	}
	return &Reader{rc: z.(io.ReadCloser), z: z}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && err != io.EOF {
		return n, ErrCorruptStream
	}
	return n, err
}

// Close closes the underlying stream and returns it to the pool. The
// Reader must not be used again afterward.
func (r *Reader) Close() error {
	err := r.rc.Close()
	readers.Put(r.z)
	return err
}

// GetWriter returns a pooled *zlib.Writer reset to write to w.
// PutWriter must be called when done. The level argument is not
// applied: every pooled writer compresses at zlib's default level,
// whatever level is passed.
func GetWriter(w io.Writer, level int) *zlib.Writer {
	zw := writers.Get().(*zlib.Writer)
	zw.Reset(w)
	return zw
}

// PutWriter returns zw to the pool. The caller must have already
// called zw.Close() to flush its final block.
func PutWriter(zw *zlib.Writer) {
	writers.Put(zw)
}

// InflateAll reads the whole zlib stream backed by r and returns its
// decompressed bytes, erroring if the result would exceed maxSize (a
// defensive bound against corrupt size headers).
func InflateAll(r io.Reader, maxSize int64) ([]byte, error) {
	zr, err := GetReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var limit io.Reader = zr
	if maxSize > 0 {
		limit = io.LimitReader(zr, maxSize+1)
	}

	buf, err := io.ReadAll(limit)
	if err != nil {
		return nil, ErrCorruptStream
	}
	if maxSize > 0 && int64(len(buf)) > maxSize {
		return nil, errors.New("zlibpool: size overflow")
	}
	return buf, nil
}

// Deflate compresses src into a new buffer at the given zlib
// compression level. Git defaults core.compression to a fast level (1)
// for new loose objects; the caller picks.
func Deflate(src []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
