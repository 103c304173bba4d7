package hash

import (
	"encoding/hex"
	"strings"
)

// AbbreviatedObjectId is a hex prefix of an ObjectId, 1 to 40 digits
// long. Callers resolving refs/objects by abbreviation should enforce
// their own minimum (go-git-style tooling conventionally uses 4); this
// package itself accepts any length in [1, HexSize].
type AbbreviatedObjectId struct {
	// prefix holds the raw bytes covering the full hex digits (nibbles
	// packed two per byte); the last nibble is masked off when the
	// digit count is odd.
	prefix []byte
	nibbles int
}

// ParseAbbreviated parses a hex prefix string into an AbbreviatedObjectId.
func ParseAbbreviated(s string) (AbbreviatedObjectId, error) {
	s = strings.ToLower(s)
	if len(s) == 0 || len(s) > HexSize {
		return AbbreviatedObjectId{}, ErrInvalidHash
	}

	padded := s
	odd := len(s)%2 == 1
	if odd {
		padded = s + "0"
	}

	b, err := hex.DecodeString(padded)
	if err != nil {
		return AbbreviatedObjectId{}, ErrInvalidHash
	}

	return AbbreviatedObjectId{prefix: b, nibbles: len(s)}, nil
}

// Len returns the number of hex digits in the abbreviation.
func (a AbbreviatedObjectId) Len() int {
	return a.nibbles
}

// FirstByte returns the abbreviation's leading full byte (its first
// two hex digits). Only valid when Len() >= 2.
func (a AbbreviatedObjectId) FirstByte() byte {
	if len(a.prefix) == 0 {
		return 0
	}
	return a.prefix[0]
}

// String returns the abbreviation's hex digits (without padding).
func (a AbbreviatedObjectId) String() string {
	full := hex.EncodeToString(a.prefix)
	return full[:a.nibbles]
}

// PrefixCompare compares a full ObjectId against the abbreviation,
// returning -1 if id sorts below every id starting with the prefix, 0
// if id starts with the prefix, and +1 if id sorts above every id
// starting with the prefix.
func (a AbbreviatedObjectId) PrefixCompare(id ObjectId) int {
	fullBytes := a.nibbles / 2
	for i := 0; i < fullBytes; i++ {
		if d := int(id[i]) - int(a.prefix[i]); d != 0 {
			if d < 0 {
				return -1
			}
			return 1
		}
	}

	if a.nibbles%2 == 0 {
		return 0
	}

	// Odd trailing nibble: compare only the high 4 bits of the next byte.
	idHigh := id[fullBytes] >> 4
	prefixHigh := a.prefix[fullBytes] >> 4
	if idHigh == prefixHigh {
		return 0
	}
	if idHigh < prefixHigh {
		return -1
	}
	return 1
}
