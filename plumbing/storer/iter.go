package storer

import (
	"io"

	"github.com/gitbridge/gitodb/plumbing"
)

// ObjectSliceIter iterates over a pre-built slice of objects.
type ObjectSliceIter struct {
	series []plumbing.EncodedObject
	pos    int
}

// NewEncodedObjectSliceIter returns an EncodedObjectIter over series.
func NewEncodedObjectSliceIter(series []plumbing.EncodedObject) *ObjectSliceIter {
	return &ObjectSliceIter{series: series}
}

func (i *ObjectSliceIter) Next() (plumbing.EncodedObject, error) {
	if i.pos >= len(i.series) {
		return nil, io.EOF
	}
	obj := i.series[i.pos]
	i.pos++
	return obj, nil
}

func (i *ObjectSliceIter) ForEach(cb func(plumbing.EncodedObject) error) error {
	for {
		obj, err := i.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(obj); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
}

func (i *ObjectSliceIter) Close() { i.pos = len(i.series) }

// MultiEncodedObjectIter chains several EncodedObjectIters together,
// used to present loose+packed(+alternate) results as one sequence.
type MultiEncodedObjectIter struct {
	iters []EncodedObjectIter
	pos   int
}

// NewMultiEncodedObjectIter chains iters in order.
func NewMultiEncodedObjectIter(iters []EncodedObjectIter) *MultiEncodedObjectIter {
	return &MultiEncodedObjectIter{iters: iters}
}

func (m *MultiEncodedObjectIter) Next() (plumbing.EncodedObject, error) {
	for m.pos < len(m.iters) {
		obj, err := m.iters[m.pos].Next()
		if err == io.EOF {
			m.pos++
			continue
		}
		return obj, err
	}
	return nil, io.EOF
}

func (m *MultiEncodedObjectIter) ForEach(cb func(plumbing.EncodedObject) error) error {
	for {
		obj, err := m.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(obj); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
}

func (m *MultiEncodedObjectIter) Close() {
	for _, it := range m.iters {
		it.Close()
	}
}

// ReferenceSliceIter iterates over a pre-built slice of references.
type ReferenceSliceIter struct {
	series []*plumbing.Reference
	pos    int
}

// NewReferenceSliceIter returns a ReferenceIter over series.
func NewReferenceSliceIter(series []*plumbing.Reference) *ReferenceSliceIter {
	return &ReferenceSliceIter{series: series}
}

func (i *ReferenceSliceIter) Next() (*plumbing.Reference, error) {
	if i.pos >= len(i.series) {
		return nil, io.EOF
	}
	ref := i.series[i.pos]
	i.pos++
	return ref, nil
}

func (i *ReferenceSliceIter) ForEach(cb func(*plumbing.Reference) error) error {
	for {
		ref, err := i.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(ref); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
}

func (i *ReferenceSliceIter) Close() { i.pos = len(i.series) }
