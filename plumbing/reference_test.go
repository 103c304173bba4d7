package plumbing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceFromStringsHash(t *testing.T) {
	ref := NewReferenceFromStrings("refs/heads/main", "ce013625030ba8dba906f756967f9e9ca394464a")
	assert.Equal(t, HashReference, ref.Type())
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", ref.Hash().String())
}

func TestNewReferenceFromStringsSymbolic(t *testing.T) {
	ref := NewReferenceFromStrings("HEAD", "ref: refs/heads/main\n")
	assert.Equal(t, SymbolicReference, ref.Type())
	assert.Equal(t, ReferenceName("refs/heads/main"), ref.Target())
}

func TestReferenceNameValidate(t *testing.T) {
	require.NoError(t, ReferenceName("refs/heads/main").Validate())
	assert.Error(t, ReferenceName("").Validate())
	assert.Error(t, ReferenceName("refs/heads/../x").Validate())
	assert.Error(t, ReferenceName("refs//heads").Validate())
}

func TestReferenceNameShort(t *testing.T) {
	assert.Equal(t, "main", ReferenceName("refs/heads/main").Short())
	assert.Equal(t, "v1.0", ReferenceName("refs/tags/v1.0").Short())
}
