package dotgit

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/gitbridge/gitodb/plumbing/format/idxfile"
	"github.com/gitbridge/gitodb/plumbing/format/packfile"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

// ObjectWriter buffers a new loose object's deflated content to a
// temp file, then atomically renames it into objects/<xx>/<rest>
// once Close is called and the object's final hash is known. Per
// spec §4.F, a loose object is write-once: the temp-file-then-rename
// sequence means a reader never observes a partially written object
// under the final name.
type ObjectWriter struct {
	dg   *DotGit
	file billy.File
}

func newObjectWriter(dg *DotGit) (*ObjectWriter, error) {
	f, err := dg.fs.TempFile(objectsPath, "tmp-obj-")
	if err != nil {
		return nil, fmt.Errorf("dotgit: creating temp object file: %w", err)
	}
	return &ObjectWriter{dg: dg, file: f}, nil
}

// Write implements io.Writer, appending to the temp file.
func (w *ObjectWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Close finalizes the object under id: syncs the temp file, closes
// it, and renames it into place. If an object under id already
// exists, the temp file is discarded instead (loose objects are
// content-addressed and therefore immutable once written).
func (w *ObjectWriter) Close(id hash.ObjectId) error {
	name := w.file.Name()

	if s, ok := w.file.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			w.file.Close()
			w.dg.fs.Remove(name)
			return fmt.Errorf("dotgit: syncing temp object file: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("dotgit: closing temp object file: %w", err)
	}

	target := w.dg.objectPath(id)
	if w.dg.HasObject(id) {
		return w.dg.fs.Remove(name)
	}

	dir := w.dg.fs.Join(objectsPath, id.String()[0:2])
	if err := w.dg.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dotgit: creating object directory: %w", err)
	}

	if err := w.dg.fs.Rename(name, target); err != nil {
		return fmt.Errorf("dotgit: renaming object into place: %w", err)
	}
	return nil
}

// Abort discards the temp file without publishing an object; used
// when the caller fails partway through (e.g. encoding errors) before
// the object's final hash is known.
func (w *ObjectWriter) Abort() error {
	name := w.file.Name()
	w.file.Close()
	return w.dg.fs.Remove(name)
}

// PackWriter streams a new pack into the pack directory. It enforces
// spec §4.I's publication order: the .pack file is fully written and
// fsynced before the .idx file is written and fsynced, and the .pack
// is renamed into place before the .idx is, so a reader can never
// observe a dangling index with no matching pack, the one ordering
// violation spec calls out as a correctness bug to avoid.
type PackWriter struct {
	dg      *DotGit
	tmpPack billy.File
	enc     *packfile.Encoder
}

func newPackWriter(dg *DotGit) (*PackWriter, error) {
	f, err := dg.fs.TempFile(dg.fs.Join(objectsPath, packPath), "tmp-pack-")
	if err != nil {
		return nil, fmt.Errorf("dotgit: creating temp pack file: %w", err)
	}
	return &PackWriter{dg: dg, tmpPack: f}, nil
}

// Encoder lazily builds the packfile.Encoder once the object count is
// known (the pack header needs an up-front count).
func (w *PackWriter) Encoder(count uint32) (*packfile.Encoder, error) {
	if w.enc != nil {
		return w.enc, nil
	}
	enc, err := packfile.NewEncoder(w.tmpPack, count)
	if err != nil {
		return nil, err
	}
	w.enc = enc
	return enc, nil
}

// Close finishes the pack (writing its trailing checksum), builds the
// matching index from the encoder's recorded entries, and publishes
// both files under names derived from the pack's own checksum.
func (w *PackWriter) Close() (hash.ObjectId, error) {
	if w.enc == nil {
		w.tmpPack.Close()
		return hash.ZeroHash, fmt.Errorf("dotgit: pack writer closed with no objects written")
	}

	packID, err := w.enc.Close()
	if err != nil {
		w.tmpPack.Close()
		return hash.ZeroHash, err
	}

	if s, ok := w.tmpPack.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			w.tmpPack.Close()
			return hash.ZeroHash, err
		}
	}
	tmpPackName := w.tmpPack.Name()
	if err := w.tmpPack.Close(); err != nil {
		return hash.ZeroHash, err
	}

	entries := make([]idxfile.IndexEntryInput, len(w.enc.Entries))
	for i, e := range w.enc.Entries {
		entries[i] = idxfile.NewEntry(e.Hash, e.Offset, e.CRC32)
	}
	idx := idxfile.NewIndexFromEntries(entries, packID)

	tmpIdxFile, err := w.dg.fs.TempFile(w.dg.fs.Join(objectsPath, packPath), "tmp-idx-")
	if err != nil {
		return hash.ZeroHash, err
	}
	if _, err := idxfile.NewEncoder(tmpIdxFile).Encode(idx); err != nil {
		tmpIdxFile.Close()
		w.dg.fs.Remove(tmpIdxFile.Name())
		return hash.ZeroHash, err
	}
	if s, ok := tmpIdxFile.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			tmpIdxFile.Close()
			return hash.ZeroHash, err
		}
	}
	tmpIdxName := tmpIdxFile.Name()
	if err := tmpIdxFile.Close(); err != nil {
		return hash.ZeroHash, err
	}

	base := w.dg.packBase(packID)
	if err := w.dg.fs.Rename(tmpPackName, base+packExt); err != nil {
		return hash.ZeroHash, fmt.Errorf("dotgit: publishing pack: %w", err)
	}
	if err := w.dg.fs.Rename(tmpIdxName, base+idxExt); err != nil {
		return hash.ZeroHash, fmt.Errorf("dotgit: publishing idx: %w", err)
	}

	return packID, nil
}

// Abort discards the in-progress temp pack file without publishing
// anything (the temp index file only exists while Close runs).
func (w *PackWriter) Abort() error {
	name := w.tmpPack.Name()
	w.tmpPack.Close()
	return w.dg.fs.Remove(name)
}

