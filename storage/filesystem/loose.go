package filesystem

import (
	"bytes"
	"io"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/format/objfile"
)

// writeLooseObject deflates "<kind> <size>\0<payload>" from r to w
// (spec §4.F's loose-object writer).
func writeLooseObject(w io.Writer, t plumbing.ObjectType, size int64, r io.Reader) (int64, error) {
	ow := objfile.NewWriter(w)
	if err := ow.WriteHeader(t, size); err != nil {
		return 0, err
	}
	n, err := io.Copy(ow, r)
	if err != nil {
		ow.Close()
		return n, err
	}
	return n, ow.Close()
}

// readLooseObject inflates f (positioned at a loose object's zlib
// stream start) into a fully materialized plumbing.MemoryObject keyed
// by id.
func readLooseObject(id plumbing.Hash, f io.Reader) (plumbing.EncodedObject, error) {
	r, err := objfile.NewReader(f)
	if err != nil {
		return nil, err
	}

	t, size, err := r.Header()
	if err != nil {
		r.Close()
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(size))
	if _, err := io.Copy(&buf, r); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}

	obj := plumbing.NewMemoryObjectWithContent(t, buf.Bytes())
	return obj, nil
}
