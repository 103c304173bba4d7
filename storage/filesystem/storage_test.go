package filesystem

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbridge/gitodb/plumbing"
)

func TestStorageInitThenUse(t *testing.T) {
	fs := memfs.New()
	s, err := NewStorage(fs, Options{})
	require.NoError(t, err)

	require.NoError(t, s.Init())

	cfg, err := s.Config()
	require.NoError(t, err)
	assert.False(t, cfg.Core.LogAllRefUpdates)

	obj := plumbing.NewMemoryObjectWithContent(plumbing.BlobObject, []byte("storage-level test"))
	id, err := s.SetEncodedObject(obj)
	require.NoError(t, err)

	require.NoError(t, s.HasEncodedObject(id))

	ref := plumbing.NewHashReference("refs/heads/main", id)
	require.NoError(t, s.SetReference(ref))

	got, err := s.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, id, got.Hash())
}

func TestStorageSaveConfigRoundTrip(t *testing.T) {
	fs := memfs.New()
	s, err := NewStorage(fs, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Init())

	cfg, err := s.Config()
	require.NoError(t, err)
	cfg.Core.LogAllRefUpdates = true
	require.NoError(t, s.SaveConfig(cfg))

	reloaded, err := s.Config()
	require.NoError(t, err)
	assert.True(t, reloaded.Core.LogAllRefUpdates)
}

func TestNewStorageOnUninitializedRepoUsesDefaultConfig(t *testing.T) {
	fs := memfs.New()
	s, err := NewStorage(fs, Options{})
	require.NoError(t, err)

	cfg, err := s.Config()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Core.RepositoryFormatVersion)
}
