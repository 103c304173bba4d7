package dotgit

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

func TestInitializeLayout(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)

	require.NoError(t, dg.Initialize())

	for _, dir := range []string{
		fs.Join("objects", "pack"),
		fs.Join("objects", "info"),
		fs.Join("refs", "heads"),
		fs.Join("refs", "tags"),
	} {
		_, err := fs.Stat(dir)
		assert.NoError(t, err, "expected %s to exist", dir)
	}
}

func TestObjectWriteReadHas(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	content := []byte("blob 5\x00hello")
	sum := hash.New()
	sum.Write(content)
	id, err := hash.FromRaw(sum.Sum(nil))
	require.NoError(t, err)

	assert.False(t, dg.HasObject(id))

	w, err := dg.NewObject()
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close(id))

	assert.True(t, dg.HasObject(id))

	f, err := dg.Object(id)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	ids, err := dg.Objects()
	require.NoError(t, err)
	assert.Contains(t, ids, id)
}

func TestObjectWriteIsIdempotent(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	content := []byte("blob 3\x00abc")
	sum := hash.New()
	sum.Write(content)
	id, err := hash.FromRaw(sum.Sum(nil))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w, err := dg.NewObject()
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
		require.NoError(t, w.Close(id))
	}

	assert.True(t, dg.HasObject(id))
}

func TestObjectPackRoundTrip(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	w, err := dg.NewObjectPack()
	require.NoError(t, err)

	enc, err := w.Encoder(0)
	require.NoError(t, err)
	_ = enc

	packID, err := w.Close()
	require.NoError(t, err)
	assert.NotEqual(t, hash.ZeroHash, packID)

	ids, err := dg.ObjectPacks()
	require.NoError(t, err)
	assert.Contains(t, ids, packID)

	pf, err := dg.ObjectPack(packID)
	require.NoError(t, err)
	defer pf.Close()

	idxf, err := dg.ObjectPackIdx(packID)
	require.NoError(t, err)
	defer idxf.Close()
}

func TestAlternates(t *testing.T) {
	fs := memfs.New()
	dg := New(fs)
	require.NoError(t, dg.Initialize())

	alts, err := dg.Alternates()
	require.NoError(t, err)
	assert.Empty(t, alts)

	require.NoError(t, dg.AddAlternate("/other/repo/objects"))

	f, err := fs.Open(fs.Join("objects", "info", "alternates"))
	require.NoError(t, err)
	defer f.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(f)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/other/repo/objects")
}
