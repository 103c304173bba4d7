package idxfile

import (
	"bytes"
	"testing"

	"github.com/gitbridge/gitodb/plumbing/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idFor(t *testing.T, hex string) hash.ObjectId {
	t.Helper()
	id, err := hash.FromHex(hex)
	require.NoError(t, err)
	return id
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []entry{
		NewEntry(idFor(t, "ce013625030ba8dba906f756967f9e9ca394464a"), 12, 0xdeadbeef),
		NewEntry(idFor(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d"), 42, 0x1234),
		NewEntry(idFor(t, "fcfbeda36df8be2ca8e9ed2f7fe378df312fd5a0"), 1<<32, 0xcafe),
	}
	packSum := idFor(t, "000000000000000000000000000000000000000a")

	idx := NewIndexFromEntries(entries, packSum)

	var buf bytes.Buffer
	_, err := NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	decoded, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)

	assert.Equal(t, idx.Count(), decoded.Count())
	for _, e := range entries {
		off, err := decoded.FindOffset(e.id)
		require.NoError(t, err)
		assert.Equal(t, e.offset, off)

		crc, err := decoded.FindCRC32(e.id)
		require.NoError(t, err)
		assert.Equal(t, e.crc, crc)
	}
	assert.Equal(t, packSum, decoded.PackfileChecksum)
}

func TestVerifyChecksum(t *testing.T) {
	entries := []entry{
		NewEntry(idFor(t, "ce013625030ba8dba906f756967f9e9ca394464a"), 12, 1),
	}
	idx := NewIndexFromEntries(entries, hash.ZeroHash)

	var buf bytes.Buffer
	_, err := NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	raw := buf.Bytes()
	require.NoError(t, idx.VerifyChecksum(raw))

	corrupt := append([]byte(nil), raw...)
	corrupt[10] ^= 0xff
	assert.Error(t, idx.VerifyChecksum(corrupt))
}

func TestResolveAbbreviated(t *testing.T) {
	entries := []entry{
		NewEntry(idFor(t, "ce013625030ba8dba906f756967f9e9ca394464a"), 1, 0),
		NewEntry(idFor(t, "ce0136000000000000000000000000000000000a"), 2, 0),
		NewEntry(idFor(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d"), 3, 0),
	}
	idx := NewIndexFromEntries(entries, hash.ZeroHash)

	prefix, err := hash.ParseAbbreviated("ce0136")
	require.NoError(t, err)

	var out []hash.ObjectId
	require.NoError(t, idx.Resolve(prefix, 10, &out))
	assert.Len(t, out, 2)

	out = nil
	require.ErrorIs(t, idx.Resolve(prefix, 1, &out), ErrResolveTooMany)
}

func TestFindOffsetMissing(t *testing.T) {
	idx := NewIndexFromEntries(nil, hash.ZeroHash)
	_, err := idx.FindOffset(idFor(t, "ce013625030ba8dba906f756967f9e9ca394464a"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
