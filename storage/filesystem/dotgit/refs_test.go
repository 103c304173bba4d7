package dotgit

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

func TestLooseRefWriteRead(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	ref := plumbing.NewHashReference("refs/heads/main", id)

	require.NoError(t, dg.WriteLooseRef(ref))

	got, err := dg.ReadLooseRef("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, ref.Name(), got.Name())
	assert.Equal(t, ref.Hash(), got.Hash())
}

func TestLooseRefNotFound(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	_, err := dg.ReadLooseRef("refs/heads/missing")
	assert.Equal(t, plumbing.ErrReferenceNotFound, err)
}

func TestLooseRefDeleteCleansEmptyDirs(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	ref := plumbing.NewHashReference("refs/heads/feature/nested", id)
	require.NoError(t, dg.WriteLooseRef(ref))

	require.NoError(t, dg.DeleteLooseRef("refs/heads/feature/nested"))

	_, err := dg.ReadLooseRef("refs/heads/feature/nested")
	assert.Equal(t, plumbing.ErrReferenceNotFound, err)

	_, err = fs.Stat(fs.Join("refs", "heads", "feature"))
	assert.Error(t, err, "empty intermediate directory should have been removed")
}

func TestPackedRefsRoundTrip(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	id1 := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	id2 := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")

	refs := []*Ref{
		{Reference: plumbing.NewHashReference("refs/heads/main", id1)},
		{Reference: plumbing.NewHashReference("refs/tags/v1", id2), Peeled: id1, HasPeeled: true},
	}

	require.NoError(t, dg.WritePackedRefs(refs))

	got, err := dg.ReadPackedRefs()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), got[0].Reference.Name())
	assert.False(t, got[0].HasPeeled)

	assert.Equal(t, plumbing.ReferenceName("refs/tags/v1"), got[1].Reference.Name())
	assert.True(t, got[1].HasPeeled)
	assert.Equal(t, id1, got[1].Peeled)
}

func TestReadPackedRefsMissingFile(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	refs, err := dg.ReadPackedRefs()
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestReflogAppendAndHas(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	assert.False(t, dg.HasReflog("refs/heads/main"))

	f, err := dg.AppendReflog("refs/heads/main")
	require.NoError(t, err)
	_, err = f.Write([]byte("0000000000000000000000000000000000000000 e8d3ffab552895c19b9fcf7aa264d277cde33881 1700000000 +0000\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.True(t, dg.HasReflog("refs/heads/main"))
}
