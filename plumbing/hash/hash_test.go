package hash

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	var raw [Size]byte
	_, err := rand.Read(raw[:])
	require.NoError(t, err)

	id, err := FromRaw(raw[:])
	require.NoError(t, err)

	name := id.String()
	assert.Len(t, name, HexSize)

	reparsed, err := FromHex(name)
	require.NoError(t, err)
	assert.Equal(t, id, reparsed)
}

func TestFromHexRejectsBadInput(t *testing.T) {
	_, err := FromHex("short")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = FromHex("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestCompareOrdering(t *testing.T) {
	a := MustFromHex("0000000000000000000000000000000000000001")
	b := MustFromHex("0000000000000000000000000000000000000002")

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestPrefixCompareEvenAndOdd(t *testing.T) {
	id := MustFromHex("ce013625030ba8dba906f756967f9e9ca394464a")

	even, err := ParseAbbreviated("ce01")
	require.NoError(t, err)
	assert.Equal(t, 0, even.PrefixCompare(id))

	odd, err := ParseAbbreviated("ce0136250")
	require.NoError(t, err)
	assert.Equal(t, 0, odd.PrefixCompare(id))

	below, err := ParseAbbreviated("cf00")
	require.NoError(t, err)
	assert.Equal(t, -1, below.PrefixCompare(id))

	above, err := ParseAbbreviated("cd00")
	require.NoError(t, err)
	assert.Equal(t, 1, above.PrefixCompare(id))
}

func TestSort(t *testing.T) {
	ids := []ObjectId{
		MustFromHex("0000000000000000000000000000000000000002"),
		MustFromHex("0000000000000000000000000000000000000001"),
	}
	Sort(ids)
	assert.True(t, ids[0].Less(ids[1]))
}
