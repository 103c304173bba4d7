// Package memory is an in-memory storage backend: ephemeral, with no
// disk footprint, used by tests and by embedding consumers that don't
// need persistence. It implements the same storer.Storer contract as
// storage/filesystem.
package memory

import (
	"sync"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/storer"
)

// Storage composes the object and reference halves into the single
// handle most callers hold, mirroring storage/filesystem.Storage's
// shape.
type Storage struct {
	ObjectStorage
	ReferenceStorage
}

// NewStorage returns an empty in-memory Storage.
func NewStorage() *Storage {
	return &Storage{
		ObjectStorage: ObjectStorage{
			objects: make(map[plumbing.Hash]plumbing.EncodedObject),
		},
		ReferenceStorage: ReferenceStorage{
			refs: make(map[plumbing.ReferenceName]*plumbing.Reference),
		},
	}
}

// ObjectStorage implements storer.EncodedObjectStorer over a plain map,
// guarded by a mutex since, unlike storage/filesystem's pack/loose
// split, there's a single shared map every reader and writer touches.
type ObjectStorage struct {
	mu      sync.RWMutex
	objects map[plumbing.Hash]plumbing.EncodedObject
}

// NewEncodedObject returns a new, empty MemoryObject.
func (o *ObjectStorage) NewEncodedObject() plumbing.EncodedObject {
	return plumbing.NewMemoryObject()
}

// SetEncodedObject stores obj, keyed by its own computed hash.
func (o *ObjectStorage) SetEncodedObject(obj plumbing.EncodedObject) (plumbing.Hash, error) {
	h := obj.Hash()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[h] = obj
	return h, nil
}

// EncodedObject returns the object stored under h, if its type matches
// t (or t is plumbing.AnyObject).
func (o *ObjectStorage) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	obj, ok := o.objects[h]
	if !ok || (t != plumbing.AnyObject && obj.Type() != t) {
		return nil, plumbing.ErrObjectNotFound
	}
	return obj, nil
}

// HasEncodedObject reports whether h is present.
func (o *ObjectStorage) HasEncodedObject(h plumbing.Hash) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, ok := o.objects[h]; !ok {
		return plumbing.ErrObjectNotFound
	}
	return nil
}

// EncodedObjectSize returns the stored size of h's object.
func (o *ObjectStorage) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	obj, ok := o.objects[h]
	if !ok {
		return 0, plumbing.ErrObjectNotFound
	}
	return obj.Size(), nil
}

// IterEncodedObjects returns an iterator over every stored object of
// type t (or every object, for AnyObject).
func (o *ObjectStorage) IterEncodedObjects(t plumbing.ObjectType) (storer.EncodedObjectIter, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	series := make([]plumbing.EncodedObject, 0, len(o.objects))
	for _, obj := range o.objects {
		if t == plumbing.AnyObject || obj.Type() == t {
			series = append(series, obj)
		}
	}
	return storer.NewEncodedObjectSliceIter(series), nil
}

// ReferenceStorage implements storer.ReferenceStorer over a plain map.
type ReferenceStorage struct {
	mu   sync.RWMutex
	refs map[plumbing.ReferenceName]*plumbing.Reference
}

// SetReference stores ref unconditionally.
func (r *ReferenceStorage) SetReference(ref *plumbing.Reference) error {
	if ref == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[ref.Name()] = ref
	return nil
}

// CheckAndSetReference stores ref only if the current value for its
// name matches old.
func (r *ReferenceStorage) CheckAndSetReference(ref, old *plumbing.Reference) error {
	if ref == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.refs[ref.Name()]
	if old == nil {
		if exists {
			return storer.ErrReferenceHasChanged
		}
	} else if !exists || current.Hash() != old.Hash() {
		return storer.ErrReferenceHasChanged
	}

	r.refs[ref.Name()] = ref
	return nil
}

// Reference returns the stored reference named n.
func (r *ReferenceStorage) Reference(n plumbing.ReferenceName) (*plumbing.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.refs[n]
	if !ok {
		return nil, plumbing.ErrReferenceNotFound
	}
	return ref, nil
}

// IterReferences returns an iterator over every stored reference.
func (r *ReferenceStorage) IterReferences() (storer.ReferenceIter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]*plumbing.Reference, 0, len(r.refs))
	for _, ref := range r.refs {
		refs = append(refs, ref)
	}
	return storer.NewReferenceSliceIter(refs), nil
}

// RemoveReference deletes the reference named n, if present.
func (r *ReferenceStorage) RemoveReference(n plumbing.ReferenceName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refs, n)
	return nil
}

// CountLooseRefs returns the number of stored references. There is no
// loose/packed distinction in memory, so every reference counts.
func (r *ReferenceStorage) CountLooseRefs() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs), nil
}
