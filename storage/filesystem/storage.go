// Package filesystem implements the storage engine's on-disk backend:
// a DotGit-rooted object store (loose + packed, with alternates),
// reference store (loose + packed-refs, with reflogs), and the narrow
// [core] config slice the two consult, composed the way the teacher
// composes its storage.Storage over dotgit.DotGit.
package filesystem

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"github.com/gitbridge/gitodb/config"
	"github.com/gitbridge/gitodb/plumbing/cache"
	"github.com/gitbridge/gitodb/storage/filesystem/dotgit"
)

// Storage is the top-level handle a caller obtains over a repository's
// on-disk state: object storage, reference storage, and config, all
// rooted at the same billy.Filesystem.
type Storage struct {
	*ObjectStorage
	*ReferenceStorage

	dir *dotgit.DotGit
}

// Options configures the object cache sizes a Storage is built with;
// the zero value picks the same defaults the teacher ships.
type Options struct {
	// ObjectCacheSize bounds the decoded-object LRU consulted before
	// any pack or loose read. Zero selects cache.DefaultMaxSize.
	ObjectCacheSize cache.FileSize
	// WindowCacheSize bounds the per-pack delta-base window cache
	// shared across every open Packfile. Zero selects
	// cache.DefaultMaxSize.
	WindowCacheSize cache.FileSize
	// Logger receives rescan, cache-eviction, and alternate-failure
	// diagnostics (spec §4.J). Nil selects the package default, which
	// discards everything below Warn.
	Logger *slog.Logger
}

// NewStorage returns a Storage rooted at fs, loading any existing
// .git/config (a missing one is treated as all-defaults).
func NewStorage(fs billy.Filesystem, opts Options) (*Storage, error) {
	if opts.ObjectCacheSize == 0 {
		opts.ObjectCacheSize = cache.DefaultMaxSize
	}
	if opts.WindowCacheSize == 0 {
		opts.WindowCacheSize = cache.DefaultMaxSize
	}
	if opts.Logger == nil {
		opts.Logger = defaultLogger
	}

	dg := dotgit.New(fs)

	cfg, err := loadConfig(dg)
	if err != nil {
		return nil, err
	}

	objectCache := cache.NewObjectLRU(opts.ObjectCacheSize, cache.WithObjectLRULogger(opts.Logger))
	windowCache := cache.NewWindowCache(opts.WindowCacheSize, cache.WithWindowCacheLogger(opts.Logger))

	return &Storage{
		ObjectStorage:    NewObjectStorage(dg, objectCache, windowCache, WithLogger(opts.Logger)),
		ReferenceStorage: NewReferenceStorage(dg, cfg),
		dir:              dg,
	}, nil
}

// Init lays out a fresh repository's directory skeleton
// (objects/pack, objects/info, refs/heads, refs/tags) and writes a
// default [core] config section.
func (s *Storage) Init() error {
	if err := s.dir.Initialize(); err != nil {
		return err
	}
	return s.SaveConfig(config.NewConfig())
}

// Config returns the repository's current [core] configuration.
func (s *Storage) Config() (*config.Config, error) {
	return loadConfig(s.dir)
}

// SaveConfig writes cfg back to .git/config.
func (s *Storage) SaveConfig(cfg *config.Config) error {
	w, err := s.dir.ConfigWriter()
	if err != nil {
		return err
	}
	defer w.Close()

	return config.NewEncoder(w).Encode(cfg)
}

func loadConfig(dg *dotgit.DotGit) (*config.Config, error) {
	f, err := dg.Config()
	if err != nil {
		return config.NewConfig(), nil
	}
	defer f.Close()

	cfg := config.NewConfig()
	if err := config.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
