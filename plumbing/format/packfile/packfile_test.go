package packfile

import (
	"bytes"
	"io"
	"testing"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/format/idxfile"
	"github.com/gitbridge/gitodb/plumbing/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestPack(t *testing.T, objects []struct {
	typ     plumbing.ObjectType
	content []byte
}) ([]byte, *idxfile.Index, hash.ObjectId) {
	t.Helper()

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, uint32(len(objects)))
	require.NoError(t, err)

	for _, o := range objects {
		_, err := enc.WriteObject(o.typ, o.content)
		require.NoError(t, err)
	}

	packSum, err := enc.Close()
	require.NoError(t, err)

	idx := idxfile.NewIndexFromEntries(toIdxEntries(enc.Entries), packSum)
	return buf.Bytes(), idx, packSum
}

func toIdxEntries(entries []indexEntry) []idxfile.IndexEntryInput {
	out := make([]idxfile.IndexEntryInput, len(entries))
	for i, e := range entries {
		out[i] = idxfile.NewEntry(e.Hash, e.Offset, e.CRC32)
	}
	return out
}

func TestScannerReadsHeaderAndEntries(t *testing.T) {
	raw, _, _ := buildTestPack(t, []struct {
		typ     plumbing.ObjectType
		content []byte
	}{
		{plumbing.BlobObject, []byte("hello\n")},
		{plumbing.BlobObject, []byte("world\n")},
	})

	s := NewScanner(bytes.NewReader(raw))
	hdr, err := s.Header()
	require.NoError(t, err)
	assert.EqualValues(t, 2, hdr.ObjectsQty)

	eh1, body1, _, err := s.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, eh1.Type)
	assert.Equal(t, "hello\n", string(body1))

	eh2, body2, _, err := s.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, eh2.Type)
	assert.Equal(t, "world\n", string(body2))

	_, err = s.Checksum()
	require.NoError(t, err)
}

func TestPackfileGetByOffset(t *testing.T) {
	raw, idx, packID := buildTestPack(t, []struct {
		typ     plumbing.ObjectType
		content []byte
	}{
		{plumbing.BlobObject, []byte("hello\n")},
	})

	pf := NewPackfile(packID, bytes.NewReader(raw), idx)

	it := idx.Entries()
	e, err := it.Next()
	require.NoError(t, err)

	obj, err := pf.GetByOffset(int64(e.Offset))
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, obj.Type())

	r, err := obj.Reader()
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
	require.NoError(t, r.Close())
}

func TestPackfileGetByHash(t *testing.T) {
	raw, idx, packID := buildTestPack(t, []struct {
		typ     plumbing.ObjectType
		content []byte
	}{
		{plumbing.BlobObject, []byte("hello\n")},
	})

	pf := NewPackfile(packID, bytes.NewReader(raw), idx)

	it := idx.Entries()
	e, err := it.Next()
	require.NoError(t, err)

	obj, err := pf.Get(e.Hash)
	require.NoError(t, err)
	assert.Equal(t, e.Hash, obj.Hash())
}
