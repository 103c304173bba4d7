package plumbing

import (
	"bytes"
	"errors"
	"io"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

// ErrReadOnlyObject is returned when attempting to write to an object
// that has already had its hash computed and fixed.
var ErrReadOnlyObject = errors.New("plumbing: object is read-only")

// MemoryObject is a trivial in-memory EncodedObject: its content lives
// in a single buffer. It is the scratch type used while inflating a
// loose object, decoding a pack entry, or building a delta base chain.
type MemoryObject struct {
	typ  ObjectType
	size int64
	id   Hash
	hash bool
	cont []byte
}

// NewMemoryObject returns an empty MemoryObject ready to be written to.
func NewMemoryObject() *MemoryObject {
	return &MemoryObject{}
}

// NewMemoryObjectWithContent returns a MemoryObject already populated
// with content, its size set from len(content).
func NewMemoryObjectWithContent(t ObjectType, content []byte) *MemoryObject {
	return &MemoryObject{typ: t, size: int64(len(content)), cont: content}
}

func (o *MemoryObject) Hash() Hash {
	if !o.hash {
		o.id = o.computeHash()
		o.hash = true
	}
	return o.id
}

func (o *MemoryObject) computeHash() Hash {
	h := hash.New()
	h.Write(o.typ.Bytes())
	h.Write([]byte(" "))
	h.Write([]byte(itoa(o.size)))
	h.Write([]byte{0})
	h.Write(o.cont)

	sum := h.Sum(nil)
	id, _ := hash.FromRaw(sum)
	return id
}

func (o *MemoryObject) Type() ObjectType       { return o.typ }
func (o *MemoryObject) SetType(t ObjectType)   { o.typ = t; o.hash = false }
func (o *MemoryObject) Size() int64            { return o.size }
func (o *MemoryObject) SetSize(s int64)        { o.size = s }

func (o *MemoryObject) Reader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(o.cont)), nil
}

func (o *MemoryObject) Writer() (io.WriteCloser, error) {
	return &memoryObjectWriter{o}, nil
}

// Bytes exposes the object's raw content. The returned slice must not
// be mutated by the caller.
func (o *MemoryObject) Bytes() []byte {
	return o.cont
}

type memoryObjectWriter struct {
	o *MemoryObject
}

func (w *memoryObjectWriter) Write(p []byte) (int, error) {
	w.o.cont = append(w.o.cont, p...)
	w.o.hash = false
	if int64(len(w.o.cont)) > w.o.size {
		w.o.size = int64(len(w.o.cont))
	}
	return len(p), nil
}

func (w *memoryObjectWriter) Close() error { return nil }

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
