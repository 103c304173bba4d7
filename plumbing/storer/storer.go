// Package storer declares the contracts the engine's storage backends
// implement: object storage, reference storage, and the iterators
// that walk them. storage/filesystem and storage/memory both satisfy
// these interfaces so callers can depend on the interface rather than
// the concrete backend.
package storer

import (
	"errors"
	"io"

	"github.com/gitbridge/gitodb/plumbing"
)

// ErrStop is a sentinel a ForEach callback can return to end iteration
// early without it being treated as an error.
var ErrStop = errors.New("storer: stop iteration")

// ErrReferenceHasChanged is returned by CheckAndSetReference when the
// store's current value for a ref doesn't match the expected old
// value, signaling a lost compare-and-swap race.
var ErrReferenceHasChanged = errors.New("storer: reference has changed")

// EncodedObjectStorer is the read/write contract for the object half
// of the engine (component G, ObjectDirectory).
type EncodedObjectStorer interface {
	NewEncodedObject() plumbing.EncodedObject
	SetEncodedObject(plumbing.EncodedObject) (plumbing.Hash, error)
	EncodedObject(plumbing.ObjectType, plumbing.Hash) (plumbing.EncodedObject, error)
	IterEncodedObjects(plumbing.ObjectType) (EncodedObjectIter, error)
	HasEncodedObject(plumbing.Hash) error
	EncodedObjectSize(plumbing.Hash) (int64, error)
}

// DeltaObjectStorer is implemented by stores that can hand back an
// object still in its delta representation, for pack-reuse callers.
type DeltaObjectStorer interface {
	DeltaObject(plumbing.ObjectType, plumbing.Hash) (plumbing.EncodedObject, error)
}

// Transactioner is implemented by stores that support batching a
// sequence of writes so they become visible atomically.
type Transactioner interface {
	Begin() Transaction
}

// Transaction is a pending batch of object writes.
type Transaction interface {
	SetEncodedObject(plumbing.EncodedObject) (plumbing.Hash, error)
	EncodedObject(plumbing.ObjectType, plumbing.Hash) (plumbing.EncodedObject, error)
	Commit() error
	Rollback() error
}

// PackfileWriter is implemented by stores that can ingest an entire
// pack stream instead of one object at a time (component I).
type PackfileWriter interface {
	PackfileWriter() (io.WriteCloser, error)
}

// EncodedObjectIter iterates over a sequence of EncodedObjects.
type EncodedObjectIter interface {
	Next() (plumbing.EncodedObject, error)
	ForEach(func(plumbing.EncodedObject) error) error
	Close()
}

// ReferenceStorer is the read/write contract for the reference half of
// the engine (component H, RefDirectory).
type ReferenceStorer interface {
	SetReference(*plumbing.Reference) error
	// CheckAndSetReference sets ref only if the store's current value
	// for ref.Name() equals old; if old is nil the name must not yet
	// exist. Violations return ErrReferenceHasChanged.
	CheckAndSetReference(ref, old *plumbing.Reference) error
	Reference(plumbing.ReferenceName) (*plumbing.Reference, error)
	IterReferences() (ReferenceIter, error)
	RemoveReference(plumbing.ReferenceName) error
	CountLooseRefs() (int, error)
}

// ReferenceIter iterates over a sequence of References.
type ReferenceIter interface {
	Next() (*plumbing.Reference, error)
	ForEach(func(*plumbing.Reference) error) error
	Close()
}

// Storer composes the object and reference contracts into the single
// handle most callers hold.
type Storer interface {
	EncodedObjectStorer
	ReferenceStorer
}
