package filesystem

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/format/idxfile"
	"github.com/gitbridge/gitodb/plumbing/format/packfile"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

// ErrPackfileCorrupt wraps any structural failure encountered while
// ingesting an incoming pack stream (spec §4.I's pack-stream
// insertion path).
var ErrPackfileCorrupt = fmt.Errorf("storage: corrupt incoming packfile")

// ErrPackfileMismatch is returned when an incoming pack's trailing
// checksum does not match the bytes actually received.
var ErrPackfileMismatch = fmt.Errorf("storage: packfile checksum mismatch")

// PackfileWriter returns a stream the caller writes a complete,
// already-assembled pack to (spec's "pack-stream insertion" path used
// by fetch/receive collaborators, component I). Ordering on Close is
// mandatory: write .pack, fsync, write .idx, fsync, rename .pack,
// rename .idx; never the reverse, or a reader could observe a
// dangling index with no matching pack.
func (o *ObjectStorage) PackfileWriter() (io.WriteCloser, error) {
	fs := o.dir.Fs()
	tmp, err := fs.TempFile(fs.Join("objects", "pack"), "tmp-recv-pack-")
	if err != nil {
		return nil, err
	}
	return &packStreamWriter{o: o, fs: fs, tmp: tmp}, nil
}

type packStreamWriter struct {
	o   *ObjectStorage
	fs  billy.Filesystem
	tmp billy.File
}

func (w *packStreamWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

type resolvedEntry struct {
	typ     plumbing.ObjectType
	content []byte
}

// Close parses the fully-written temp pack, resolving every
// OFS_DELTA/REF_DELTA entry to its final type and content so each
// object's true hash can be recorded in the index. A "thin pack"
// whose REF_DELTA base lives outside this stream is resolved against
// this directory's own object store. It then publishes the pack and
// its freshly built index under names derived from the pack's own
// trailing checksum.
func (w *packStreamWriter) Close() error {
	name := w.tmp.Name()
	if s, ok := w.tmp.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			w.tmp.Close()
			w.fs.Remove(name)
			return err
		}
	}
	if err := w.tmp.Close(); err != nil {
		w.fs.Remove(name)
		return err
	}

	entries, packChecksum, err := w.buildIndex(name)
	if err != nil {
		w.fs.Remove(name)
		return err
	}

	idx := idxfile.NewIndexFromEntries(entries, packChecksum)

	tmpIdx, err := w.fs.TempFile(w.fs.Join("objects", "pack"), "tmp-recv-idx-")
	if err != nil {
		w.fs.Remove(name)
		return err
	}
	if _, err := idxfile.NewEncoder(tmpIdx).Encode(idx); err != nil {
		tmpIdx.Close()
		w.fs.Remove(tmpIdx.Name())
		w.fs.Remove(name)
		return err
	}
	tmpIdxName := tmpIdx.Name()
	if s, ok := tmpIdx.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			tmpIdx.Close()
			w.fs.Remove(tmpIdxName)
			w.fs.Remove(name)
			return err
		}
	}
	if err := tmpIdx.Close(); err != nil {
		w.fs.Remove(tmpIdxName)
		w.fs.Remove(name)
		return err
	}

	base := w.fs.Join("objects", "pack", "pack-"+packChecksum.String())
	if err := w.fs.Rename(name, base+".pack"); err != nil {
		return fmt.Errorf("storage: publishing pack: %w", err)
	}
	if err := w.fs.Rename(tmpIdxName, base+".idx"); err != nil {
		return fmt.Errorf("storage: publishing idx: %w", err)
	}

	return nil
}

func (w *packStreamWriter) buildIndex(name string) ([]idxfile.IndexEntryInput, hash.ObjectId, error) {
	f, err := w.fs.Open(name)
	if err != nil {
		return nil, hash.ZeroHash, err
	}
	defer f.Close()

	sc := packfile.NewScanner(f)
	hdr, err := sc.Header()
	if err != nil {
		return nil, hash.ZeroHash, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}

	byOffset := make(map[int64]resolvedEntry, hdr.ObjectsQty)
	byHash := make(map[hash.ObjectId]resolvedEntry, hdr.ObjectsQty)
	entries := make([]idxfile.IndexEntryInput, 0, hdr.ObjectsQty)

	for i := uint32(0); i < hdr.ObjectsQty; i++ {
		eh, body, crc, err := sc.NextEntry()
		if err != nil {
			return nil, hash.ZeroHash, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
		}

		typ := eh.Type
		content := body

		switch typ {
		case plumbing.OFSDeltaObject:
			base, ok := byOffset[eh.OffsetReference]
			if !ok {
				return nil, hash.ZeroHash, fmt.Errorf("%w: ofs-delta base not found at offset %d", ErrPackfileCorrupt, eh.OffsetReference)
			}
			patched, err := packfile.PatchDelta(base.content, body)
			if err != nil {
				return nil, hash.ZeroHash, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
			}
			typ, content = base.typ, patched
		case plumbing.REFDeltaObject:
			base, err := w.resolveRefBase(eh.HashReference, byHash)
			if err != nil {
				return nil, hash.ZeroHash, err
			}
			patched, err := packfile.PatchDelta(base.content, body)
			if err != nil {
				return nil, hash.ZeroHash, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
			}
			typ, content = base.typ, patched
		}

		id := hashObject(typ, content)
		re := resolvedEntry{typ: typ, content: content}
		byOffset[eh.Offset] = re
		byHash[id] = re

		entries = append(entries, idxfile.NewEntry(id, uint64(eh.Offset), crc))
	}

	packChecksum, err := sc.Checksum()
	if err != nil {
		if errors.Is(err, packfile.ErrChecksumMismatch) {
			return nil, hash.ZeroHash, ErrPackfileMismatch
		}
		return nil, hash.ZeroHash, fmt.Errorf("%w: %w", ErrPackfileCorrupt, err)
	}

	return entries, packChecksum, nil
}

func (w *packStreamWriter) resolveRefBase(id hash.ObjectId, byHash map[hash.ObjectId]resolvedEntry) (resolvedEntry, error) {
	if re, ok := byHash[id]; ok {
		return re, nil
	}

	obj, err := w.o.EncodedObject(plumbing.AnyObject, id)
	if err != nil {
		return resolvedEntry{}, fmt.Errorf("%w: ref-delta base %s not found", ErrPackfileCorrupt, id)
	}

	r, err := obj.Reader()
	if err != nil {
		return resolvedEntry{}, err
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return resolvedEntry{}, err
	}

	return resolvedEntry{typ: obj.Type(), content: content}, nil
}

func hashObject(t plumbing.ObjectType, content []byte) hash.ObjectId {
	h := hash.New()
	h.Write(t.Bytes())
	h.Write([]byte{' '})
	h.Write([]byte(itoa(int64(len(content)))))
	h.Write([]byte{0})
	h.Write(content)
	sum, _ := hash.FromRaw(h.Sum(nil))
	return sum
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
