package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCoreSection(t *testing.T) {
	raw := "[core]\n\trepositoryformatversion = 0\n\tlogallrefupdates = true\n\tbare = false\n"

	cfg := NewConfig()
	err := NewDecoder(strings.NewReader(raw)).Decode(cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Core.RepositoryFormatVersion)
	assert.True(t, cfg.Core.LogAllRefUpdates)
	assert.False(t, cfg.Core.Bare)
}

func TestDecodeMissingCoreSectionLeavesDefaults(t *testing.T) {
	cfg := NewConfig()
	err := NewDecoder(strings.NewReader("")).Decode(cfg)
	require.NoError(t, err)

	assert.False(t, cfg.Core.LogAllRefUpdates)
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Core.LogAllRefUpdates = true
	cfg.Core.RepositoryFormatVersion = 0

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(cfg))

	got := NewConfig()
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(got))
	assert.Equal(t, cfg.Core.LogAllRefUpdates, got.Core.LogAllRefUpdates)
	assert.Equal(t, cfg.Core.RepositoryFormatVersion, got.Core.RepositoryFormatVersion)
}
