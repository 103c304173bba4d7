// Package dotgit implements low-level path and file operations over a
// repository's .git directory: loose object paths, the pack directory,
// alternates, and the ref namespace. It knows nothing about object
// encoding or pack parsing; that's plumbing/format/*'s job. This
// mirrors the teacher's storage/filesystem/dotgit package, which plays
// the same role beneath its own ObjectStorage/ReferenceStorage.
package dotgit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/gitbridge/gitodb/plumbing/hash"
)

const (
	objectsPath = "objects"
	packPath    = "pack"
	infoPath    = "info"

	alternatesPath = "objects/info/alternates"
	configPath     = "config"

	packExt = ".pack"
	idxExt  = ".idx"
)

var (
	// ErrPackfileNotFound is returned when a named pack or its index is
	// missing from the pack directory.
	ErrPackfileNotFound = errors.New("dotgit: packfile not found")
	// ErrIdxNotFound is returned when a pack's .idx sidecar is missing.
	ErrIdxNotFound = errors.New("dotgit: idx file not found")
)

// DotGit represents a repository's on-disk .git directory. The zero
// value is not usable; construct with New.
type DotGit struct {
	fs billy.Filesystem
}

// New returns a DotGit rooted at fs (fs.Root() is conventionally the
// repository's ".git" directory).
func New(fs billy.Filesystem) *DotGit {
	return &DotGit{fs: fs}
}

// Fs returns the underlying filesystem, for collaborators (the pack
// decoder, the config reader) that need to open files by relative path
// themselves.
func (d *DotGit) Fs() billy.Filesystem {
	return d.fs
}

// Initialize creates the directory skeleton a fresh repository needs:
// objects/, objects/pack/, objects/info/, refs/heads/, refs/tags/.
func (d *DotGit) Initialize() error {
	dirs := []string{
		d.fs.Join(objectsPath, packPath),
		d.fs.Join(objectsPath, infoPath),
		d.fs.Join("refs", "heads"),
		d.fs.Join("refs", "tags"),
	}
	for _, dir := range dirs {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("dotgit: initializing %s: %w", dir, err)
		}
	}
	return nil
}

// ConfigWriter opens .git/config for writing, truncating any existing
// content.
func (d *DotGit) ConfigWriter() (billy.File, error) {
	return d.fs.Create(configPath)
}

// Config opens .git/config for reading.
func (d *DotGit) Config() (billy.File, error) {
	return d.fs.Open(configPath)
}

// objectPath returns the loose-object path for id: "objects/ab/cdef...".
func (d *DotGit) objectPath(id hash.ObjectId) string {
	s := id.String()
	return d.fs.Join(objectsPath, s[0:2], s[2:])
}

// Object opens the loose object file for id.
func (d *DotGit) Object(id hash.ObjectId) (billy.File, error) {
	return d.fs.Open(d.objectPath(id))
}

// HasObject reports whether a loose object file exists for id, without
// opening it.
func (d *DotGit) HasObject(id hash.ObjectId) bool {
	_, err := d.fs.Stat(d.objectPath(id))
	return err == nil
}

// Objects lists every loose object id found under objects/<xx>/<rest>.
func (d *DotGit) Objects() ([]hash.ObjectId, error) {
	dirs, err := d.fs.ReadDir(objectsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []hash.ObjectId
	for _, dir := range dirs {
		if !dir.IsDir() || len(dir.Name()) != 2 || !isHex(dir.Name()) {
			continue
		}

		prefix := dir.Name()
		files, err := d.fs.ReadDir(d.fs.Join(objectsPath, prefix))
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if f.IsDir() || len(f.Name()) != hash.HexSize-2 {
				continue
			}
			id, err := hash.FromHex(prefix + f.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// NewObject returns a writer for a new loose object: content is
// deflated to a temp file in objects/ and atomically renamed into
// place once the writer is closed (see writers.go).
func (d *DotGit) NewObject() (*ObjectWriter, error) {
	return newObjectWriter(d)
}

// DeleteObject removes the loose object file for id, if present.
func (d *DotGit) DeleteObject(id hash.ObjectId) error {
	return d.fs.Remove(d.objectPath(id))
}

// packBase returns "objects/pack/pack-<hash>" without an extension.
func (d *DotGit) packBase(id hash.ObjectId) string {
	return d.fs.Join(objectsPath, packPath, "pack-"+id.String())
}

// PackDirModTime returns the pack directory's current mtime, used by
// the object store's racy-clean rescan defense (spec §4.G). A missing
// directory reports the zero time rather than an error.
func (d *DotGit) PackDirModTime() (time.Time, error) {
	fi, err := d.fs.Stat(d.fs.Join(objectsPath, packPath))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// ObjectPacks lists the hash of every pack-<hash>.pack file in the pack
// directory. Whether the matching .idx exists is not checked here.
func (d *DotGit) ObjectPacks() ([]hash.ObjectId, error) {
	dir := d.fs.Join(objectsPath, packPath)
	files, err := d.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var packs []hash.ObjectId
	for _, f := range files {
		name := f.Name()
		if !strings.HasPrefix(name, "pack-") || !strings.HasSuffix(name, packExt) {
			continue
		}
		hexPart := strings.TrimSuffix(strings.TrimPrefix(name, "pack-"), packExt)
		id, err := hash.FromHex(hexPart)
		if err != nil {
			continue
		}
		packs = append(packs, id)
	}

	return packs, nil
}

// ObjectPack opens the .pack file for id.
func (d *DotGit) ObjectPack(id hash.ObjectId) (billy.File, error) {
	f, err := d.fs.Open(d.packBase(id) + packExt)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPackfileNotFound
		}
		return nil, err
	}
	return f, nil
}

// ObjectPackIdx opens the .idx sidecar for id.
func (d *DotGit) ObjectPackIdx(id hash.ObjectId) (billy.File, error) {
	f, err := d.fs.Open(d.packBase(id) + idxExt)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIdxNotFound
		}
		return nil, err
	}
	return f, nil
}

// NewObjectPack returns a writer that streams a new pack file (plus
// its computed .idx) into the pack directory, atomically (pack before
// idx, per spec §4.I).
func (d *DotGit) NewObjectPack() (*PackWriter, error) {
	return newPackWriter(d)
}

// Alternates parses objects/info/alternates (one object-directory path
// per line, relative to this objects/ directory unless absolute) and
// returns a DotGit rooted at the parent of each listed objects
// directory, for the object store's alternates
// cascade. A missing alternates file is not an error: it simply means
// no alternates.
func (d *DotGit) Alternates() ([]*DotGit, error) {
	f, err := d.fs.Open(alternatesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []*DotGit
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		path := line
		if !filepath.IsAbs(path) {
			path = d.fs.Join(objectsPath, path)
		}

		altFs, err := d.fs.Chroot(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		out = append(out, New(altFs))
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// AddAlternate appends path to info/alternates, creating it if needed.
func (d *DotGit) AddAlternate(path string) error {
	if err := d.fs.MkdirAll(d.fs.Join(objectsPath, infoPath), 0o755); err != nil {
		return err
	}

	f, err := d.fs.OpenFile(alternatesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.WriteString(f, path+"\n")
	return err
}

func isHex(s string) bool {
	for _, b := range []byte(s) {
		if b >= '0' && b <= '9' {
			continue
		}
		if b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F' {
			continue
		}
		return false
	}
	return true
}
