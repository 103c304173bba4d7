package filesystem

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbridge/gitodb/config"
	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
	"github.com/gitbridge/gitodb/plumbing/storer"
	"github.com/gitbridge/gitodb/storage/filesystem/dotgit"
)

func newTestReferenceStorage(t *testing.T, cfg *config.Config) *ReferenceStorage {
	t.Helper()
	fs := memfs.New()
	dg := dotgit.New(fs)
	require.NoError(t, dg.Initialize())
	return NewReferenceStorage(dg, cfg)
}

func TestSetAndGetReference(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	ref := plumbing.NewHashReference("refs/heads/main", id)

	require.NoError(t, r.SetReference(ref))

	got, err := r.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, id, got.Hash())
}

func TestReferenceSearchPrefixOrder(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/main", id)))

	got, err := r.Reference("main")
	require.NoError(t, err)
	assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), got.Name())
}

func TestSymbolicReferenceResolution(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/main", id)))
	require.NoError(t, r.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main")))

	got, err := r.Reference(plumbing.HEAD)
	require.NoError(t, err)
	assert.Equal(t, id, got.Hash())
}

func TestCheckAndSetReferenceGuardsAgainstChange(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id1 := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	id2 := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")

	ref1 := plumbing.NewHashReference("refs/heads/main", id1)
	require.NoError(t, r.CheckAndSetReference(ref1, nil))

	err := r.CheckAndSetReference(ref1, nil)
	assert.Equal(t, storer.ErrReferenceHasChanged, err)

	ref2 := plumbing.NewHashReference("refs/heads/main", id2)
	require.NoError(t, r.CheckAndSetReference(ref2, ref1))

	got, err := r.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, id2, got.Hash())
}

func TestSetReferenceNameConflict(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/feature", id)))

	err := r.SetReference(plumbing.NewHashReference("refs/heads/feature/sub", id))
	assert.ErrorIs(t, err, ErrNameConflict)

	err = r.SetReference(plumbing.NewHashReference("refs/heads", id))
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestRemoveReference(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/main", id)))

	require.NoError(t, r.RemoveReference("refs/heads/main"))

	_, err := r.Reference("refs/heads/main")
	assert.Equal(t, plumbing.ErrReferenceNotFound, err)
}

func TestIterReferencesMergesPackedAndLoose(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id1 := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	id2 := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")

	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/loose", id1)))
	require.NoError(t, r.dir.WritePackedRefs([]*dotgit.Ref{
		{Reference: plumbing.NewHashReference("refs/heads/packed", id2)},
	}))

	it, err := r.IterReferences()
	require.NoError(t, err)

	var names []string
	require.NoError(t, it.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, string(ref.Name()))
		return nil
	}))

	assert.Contains(t, names, "refs/heads/loose")
	assert.Contains(t, names, "refs/heads/packed")
}

func TestReflogWrittenWhenConfigured(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Core.LogAllRefUpdates = true
	r := newTestReferenceStorage(t, cfg)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/main", id)))

	assert.True(t, r.dir.HasReflog("refs/heads/main"))
}

func TestPeelCachesResultAndSkipsSecondWalk(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	commitID := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	tagID := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")
	tagRef := plumbing.NewHashReference("refs/tags/v1", tagID)
	require.NoError(t, r.SetReference(tagRef))

	var walks int
	deref := func(h plumbing.Hash) (plumbing.ObjectType, plumbing.Hash, error) {
		walks++
		if h == tagID {
			return plumbing.TagObject, commitID, nil
		}
		return plumbing.CommitObject, plumbing.ZeroHash, nil
	}

	peeled, err := r.Peel(tagRef, deref)
	require.NoError(t, err)
	assert.Equal(t, commitID, peeled)
	assert.Equal(t, 2, walks, "first Peel should walk the tag chain")

	peeled, err = r.Peel(tagRef, deref)
	require.NoError(t, err)
	assert.Equal(t, commitID, peeled)
	assert.Equal(t, 2, walks, "second Peel must be served from cache, not a fresh walk")
}

func TestPeelServedFromPackedRefsWithoutWalking(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	commitID := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	tagID := hash.MustFromHex("a8d3ffab552895c19b9fcf7aa264d277cde33882")
	tagRef := plumbing.NewHashReference("refs/tags/v1", tagID)
	require.NoError(t, r.dir.WritePackedRefs([]*dotgit.Ref{
		{Reference: tagRef, Peeled: commitID, HasPeeled: true},
	}))

	walked := false
	deref := func(plumbing.Hash) (plumbing.ObjectType, plumbing.Hash, error) {
		walked = true
		return plumbing.TagObject, plumbing.ZeroHash, nil
	}

	peeled, err := r.Peel(tagRef, deref)
	require.NoError(t, err)
	assert.Equal(t, commitID, peeled)
	assert.False(t, walked, "a packed peeled line must be served without calling deref")
}

func TestReflogNotWrittenByDefault(t *testing.T) {
	r := newTestReferenceStorage(t, nil)

	id := hash.MustFromHex("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, r.SetReference(plumbing.NewHashReference("refs/heads/main", id)))

	assert.False(t, r.dir.HasReflog("refs/heads/main"))
}
