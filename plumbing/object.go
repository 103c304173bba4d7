// Package plumbing implements the core identity and type vocabulary
// shared by the loose object store, the pack store, and the reference
// database: object kinds, the EncodedObject contract objects are
// exchanged through, and the sentinel errors those layers return.
package plumbing

import (
	"errors"
	"io"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

// Hash is the identity type used across the engine; it is an alias for
// hash.ObjectId so callers don't need to import the hash package for
// the common case of naming an object.
type Hash = hash.ObjectId

// ZeroHash is the hash with all bytes set to zero.
var ZeroHash = hash.ZeroHash

var (
	// ErrObjectNotFound is returned when an object is not found in a
	// store; it is normal control flow, not a structural failure.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidType is returned when an ObjectType is out of range for
	// the operation being performed.
	ErrInvalidType = errors.New("invalid object type")
)

// ObjectType identifies the kind of a Git object on the wire and on
// disk. The integer values match the type tag used inside pack files.
type ObjectType int8

const (
	InvalidObject  ObjectType = 0
	CommitObject   ObjectType = 1
	TreeObject     ObjectType = 2
	BlobObject     ObjectType = 3
	TagObject      ObjectType = 4
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7

	// AnyObject matches any object type in storage queries.
	AnyObject ObjectType = -127
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	case AnyObject:
		return "any"
	default:
		return "unknown"
	}
}

// Bytes returns the type name as used in the loose-object header.
func (t ObjectType) Bytes() []byte {
	return []byte(t.String())
}

// Valid reports whether t is a storable object kind (not a delta, not
// invalid/any).
func (t ObjectType) Valid() bool {
	return t >= CommitObject && t <= TagObject
}

// IsDelta reports whether t represents an undecoded delta record.
func (t ObjectType) IsDelta() bool {
	return t == REFDeltaObject || t == OFSDeltaObject
}

// ParseObjectType parses the loose-object header spelling of a type.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	case "ofs-delta":
		return OFSDeltaObject, nil
	case "ref-delta":
		return REFDeltaObject, nil
	default:
		return InvalidObject, ErrInvalidType
	}
}

// EncodedObject is the common currency every layer of the engine
// exchanges objects through: a loose-object reader, a decoded pack
// entry, and an in-memory scratch object all satisfy it.
type EncodedObject interface {
	Hash() Hash
	Type() ObjectType
	SetType(ObjectType)
	Size() int64
	SetSize(int64)
	Reader() (io.ReadCloser, error)
	Writer() (io.WriteCloser, error)
}

// DeltaObject is an EncodedObject still carrying its relationship to
// the base it was reconstructed from, used when a caller wants to
// reuse the delta representation (e.g. a pack writer) instead of the
// fully inflated bytes.
type DeltaObject interface {
	EncodedObject
	BaseHash() Hash
	ActualHash() Hash
	ActualSize() int64
}
