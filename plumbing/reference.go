package plumbing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

const (
	refPrefix       = "refs/"
	refHeadPrefix   = refPrefix + "heads/"
	refTagPrefix    = refPrefix + "tags/"
	refRemotePrefix = refPrefix + "remotes/"
	refNotePrefix   = refPrefix + "notes/"
	symRefPrefix    = "ref: "

	// HEAD is the name of the ref a repository's working position
	// points at.
	HEAD ReferenceName = "HEAD"
)

// ErrInvalidReferenceName is returned when a proposed ref name fails
// structural validation (empty components, "..", control characters).
var ErrInvalidReferenceName = errors.New("plumbing: invalid reference name")

// ErrReferenceNotFound is returned when a reference lookup by name
// finds nothing, in any of the standard search-order prefixes.
var ErrReferenceNotFound = errors.New("plumbing: reference not found")

// ReferenceName is a slash-separated reference path, e.g.
// "refs/heads/main".
type ReferenceName string

func (r ReferenceName) String() string { return string(r) }

// Short returns the ref name with any of the well-known prefixes
// stripped, e.g. "refs/heads/main" -> "main".
func (r ReferenceName) Short() string {
	s := string(r)
	res := s
	for _, prefix := range []string{refHeadPrefix, refTagPrefix, refRemotePrefix, refNotePrefix} {
		if strings.HasPrefix(s, prefix) {
			res = s[len(prefix):]
			break
		}
	}
	return res
}

func (r ReferenceName) IsBranch() bool { return strings.HasPrefix(string(r), refHeadPrefix) }
func (r ReferenceName) IsTag() bool    { return strings.HasPrefix(string(r), refTagPrefix) }
func (r ReferenceName) IsRemote() bool { return strings.HasPrefix(string(r), refRemotePrefix) }
func (r ReferenceName) IsNote() bool   { return strings.HasPrefix(string(r), refNotePrefix) }

// Validate checks r against the structural rules in spec §6: no empty
// path components, no "..", no control characters, not a lone ".".
func (r ReferenceName) Validate() error {
	s := string(r)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidReferenceName)
	}

	parts := strings.Split(s, "/")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: empty path component in %q", ErrInvalidReferenceName, s)
		}
		if p == "." || p == ".." {
			return fmt.Errorf("%w: %q path component in %q", ErrInvalidReferenceName, p, s)
		}
		if strings.Contains(p, "..") {
			return fmt.Errorf("%w: %q contains '..'", ErrInvalidReferenceName, s)
		}
		for _, c := range p {
			if c < 0x20 || c == 0x7f || c == ':' || c == '?' || c == '[' || c == '\\' || c == '^' || c == '~' || c == ' ' {
				return fmt.Errorf("%w: invalid character %q in %q", ErrInvalidReferenceName, string(c), s)
			}
		}
	}

	return nil
}

// ReferenceType distinguishes a direct (hash) reference from a
// symbolic one.
type ReferenceType int8

const (
	InvalidReference  ReferenceType = 0
	HashReference     ReferenceType = 1
	SymbolicReference ReferenceType = 2
)

// Reference is an immutable named pointer: either straight at an
// object id, or at another reference name. "Updating" a reference
// never mutates a Reference value; it produces a new one.
type Reference struct {
	t      ReferenceType
	n      ReferenceName
	h      Hash
	target ReferenceName
}

// NewReferenceFromStrings builds a Reference from a ref name and its
// raw stored value, auto-detecting symbolic vs. hash form. This is the
// constructor used when parsing loose ref files and packed-refs lines.
func NewReferenceFromStrings(name, target string) *Reference {
	n := ReferenceName(name)

	if strings.HasPrefix(target, symRefPrefix) {
		return NewSymbolicReference(n, ReferenceName(strings.TrimPrefix(target, symRefPrefix)))
	}

	var h Hash
	if id, err := hash.FromHex(strings.TrimSpace(target)); err == nil {
		h = id
	}
	return NewHashReference(n, h)
}

// NewHashReference returns a direct reference n -> h.
func NewHashReference(n ReferenceName, h Hash) *Reference {
	return &Reference{t: HashReference, n: n, h: h}
}

// NewSymbolicReference returns a symbolic reference n -> target.
func NewSymbolicReference(n, target ReferenceName) *Reference {
	return &Reference{t: SymbolicReference, n: n, target: target}
}

func (r *Reference) Type() ReferenceType  { return r.t }
func (r *Reference) Name() ReferenceName  { return r.n }
func (r *Reference) Hash() Hash           { return r.h }
func (r *Reference) Target() ReferenceName { return r.target }

// Strings returns the (name, value) pair as they would be written to
// disk: value is either the 40-char hex hash or "ref: <target>".
func (r *Reference) Strings() [2]string {
	var s [2]string
	s[0] = r.Name().String()

	if r.Type() == HashReference {
		s[1] = r.Hash().String()
		return s
	}

	s[1] = symRefPrefix + r.Target().String()
	return s
}

func (r *Reference) String() string {
	if r == nil {
		return "<nil>"
	}
	vals := r.Strings()
	return vals[0] + " " + vals[1]
}
