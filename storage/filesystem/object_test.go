package filesystem

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/format/packfile"
	"github.com/gitbridge/gitodb/storage/filesystem/dotgit"
)

func newTestObjectStorage(t *testing.T) *ObjectStorage {
	t.Helper()
	fs := memfs.New()
	dg := dotgit.New(fs)
	require.NoError(t, dg.Initialize())
	return NewObjectStorage(dg, nil, nil)
}

func TestSetAndGetEncodedObject(t *testing.T) {
	o := newTestObjectStorage(t)

	obj := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, []byte("hello loose world"))
	id, err := o.SetEncodedObject(obj)
	require.NoError(t, err)
	assert.Equal(t, obj.Hash(), id)

	require.NoError(t, o.HasEncodedObject(id))

	got, err := o.EncodedObject(plumbing.BlobObject, id)
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, got.Type())

	r, err := got.Reader()
	require.NoError(t, err)
	defer r.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, "hello loose world", buf.String())
}

func TestHasEncodedObjectMissing(t *testing.T) {
	o := newTestObjectStorage(t)

	err := o.HasEncodedObject(plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, []byte("nope")).Hash())
	assert.Equal(t, plumbing.ErrObjectNotFound, err)
}

func TestEncodedObjectWrongTypeMiss(t *testing.T) {
	o := newTestObjectStorage(t)

	obj := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, []byte("typed"))
	id, err := o.SetEncodedObject(obj)
	require.NoError(t, err)

	_, err = o.EncodedObject(plumbing.TreeObject, id)
	assert.Equal(t, plumbing.ErrObjectNotFound, err)
}

func TestPackfileWriterThenReadBack(t *testing.T) {
	o := newTestObjectStorage(t)

	content := []byte("content stored straight in a pack")
	var buf bytes.Buffer
	enc, err := packfile.NewEncoder(&buf, 1)
	require.NoError(t, err)
	_, err = enc.WriteObject(plumbing.BlobObject, content)
	require.NoError(t, err)
	_, err = enc.Close()
	require.NoError(t, err)

	w, err := o.PackfileWriter()
	require.NoError(t, err)
	_, err = w.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	id := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, content).Hash()

	require.NoError(t, o.HasEncodedObject(id))

	obj, err := o.EncodedObject(plumbing.AnyObject, id)
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, obj.Type())
}

// TestTwoPacksShareWindowCacheWithoutCollision guards against the
// WindowCache being keyed by offset alone: two packs built separately
// both place their sole object's entry right after the fixed-size pack
// header, so they collide on raw offset even though they are wholly
// different objects. Resolving both through the same ObjectStorage
// (and therefore the same shared WindowCache) must still return each
// object's own content.
func TestTwoPacksShareWindowCacheWithoutCollision(t *testing.T) {
	o := newTestObjectStorage(t)

	contentA := []byte("first pack's only object")
	contentB := []byte("second pack's only object, totally different")

	for _, content := range [][]byte{contentA, contentB} {
		var buf bytes.Buffer
		enc, err := packfile.NewEncoder(&buf, 1)
		require.NoError(t, err)
		_, err = enc.WriteObject(plumbing.BlobObject, content)
		require.NoError(t, err)
		_, err = enc.Close()
		require.NoError(t, err)

		w, err := o.PackfileWriter()
		require.NoError(t, err)
		_, err = w.Write(buf.Bytes())
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	idA := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, contentA).Hash()
	idB := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, contentB).Hash()

	objA, err := o.EncodedObject(plumbing.AnyObject, idA)
	require.NoError(t, err)
	rA, err := objA.Reader()
	require.NoError(t, err)
	gotA, err := io.ReadAll(rA)
	require.NoError(t, err)
	require.NoError(t, rA.Close())
	assert.Equal(t, contentA, gotA)

	objB, err := o.EncodedObject(plumbing.AnyObject, idB)
	require.NoError(t, err)
	rB, err := objB.Reader()
	require.NoError(t, err)
	gotB, err := io.ReadAll(rB)
	require.NoError(t, err)
	require.NoError(t, rB.Close())
	assert.Equal(t, contentB, gotB)
}

func TestIterEncodedObjectsAcrossLooseAndPacked(t *testing.T) {
	o := newTestObjectStorage(t)

	looseID, err := o.SetEncodedObject(plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, []byte("loose one")))
	require.NoError(t, err)

	packedContent := []byte("packed one")
	var buf bytes.Buffer
	enc, err := packfile.NewEncoder(&buf, 1)
	require.NoError(t, err)
	_, err = enc.WriteObject(plumbing.BlobObject, packedContent)
	require.NoError(t, err)
	_, err = enc.Close()
	require.NoError(t, err)

	w, err := o.PackfileWriter()
	require.NoError(t, err)
	_, err = w.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	packedID := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, packedContent).Hash()

	it, err := o.IterEncodedObjects(plumbing.BlobObject)
	require.NoError(t, err)

	seen := map[plumbing.Hash]bool{}
	err = it.ForEach(func(obj plumbing.EncodedObject) error {
		seen[obj.Hash()] = true
		return nil
	})
	require.NoError(t, err)

	assert.True(t, seen[looseID])
	assert.True(t, seen[packedID])
}
