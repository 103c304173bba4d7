package dotgit

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/hash"
)

const packedRefsPath = "packed-refs"

// Ref is one line out of either a loose ref file or packed-refs: a
// name and the reference it resolves to (hash or symbolic target),
// plus, for packed entries, the peeled commit hash of an annotated
// tag, when packed-refs recorded one.
type Ref struct {
	Reference *plumbing.Reference
	Peeled    plumbing.Hash
	HasPeeled bool
}

// ReadLooseRef reads a single loose reference file (HEAD, or anything
// under refs/**).
func (d *DotGit) ReadLooseRef(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	if fi, err := d.fs.Stat(string(name)); err != nil || fi.IsDir() {
		if err == nil || os.IsNotExist(err) {
			return nil, plumbing.ErrReferenceNotFound
		}
		return nil, err
	}

	f, err := d.fs.Open(string(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrReferenceNotFound
		}
		return nil, err
	}
	defer f.Close()

	return parseRefLine(string(name), f)
}

func parseRefLine(name string, f billy.File) (*plumbing.Reference, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		return nil, fmt.Errorf("dotgit: empty reference file %q", name)
	}

	return plumbing.NewReferenceFromStrings(name, line), nil
}

// WriteLooseRef atomically (write-temp, rename) writes name's content.
func (d *DotGit) WriteLooseRef(ref *plumbing.Reference) error {
	name := string(ref.Name())

	dir := parentOf(name)
	if dir != "" {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := d.fs.TempFile(dir, "tmp-ref-")
	if err != nil {
		return err
	}

	if _, err := tmp.Write([]byte(ref.Strings()[1] + "\n")); err != nil {
		tmp.Close()
		d.fs.Remove(tmp.Name())
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		d.fs.Remove(tmpName)
		return err
	}

	return d.fs.Rename(tmpName, name)
}

func parentOf(name string) string {
	idx := strings.LastIndexByte(name, '/')
	if idx < 0 {
		return ""
	}
	return name[:idx]
}

// DeleteLooseRef removes a loose ref file, if present, and cleans up
// now-empty parent directories up to (but not including) refs/
// itself.
func (d *DotGit) DeleteLooseRef(name plumbing.ReferenceName) error {
	if err := d.fs.Remove(string(name)); err != nil && !os.IsNotExist(err) {
		return err
	}

	dir := parentOf(string(name))
	for dir != "" && dir != "refs" {
		entries, err := d.fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := d.fs.Remove(dir); err != nil {
			break
		}
		dir = parentOf(dir)
	}
	return nil
}

// WalkLooseRefs visits every loose reference under refs/, in no
// particular order, calling fn for each.
func (d *DotGit) WalkLooseRefs(fn func(*plumbing.Reference) error) error {
	return d.walkRefDir("refs", fn)
}

func (d *DotGit) walkRefDir(dir string, fn func(*plumbing.Reference) error) error {
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		path := d.fs.Join(dir, e.Name())
		if e.IsDir() {
			if err := d.walkRefDir(path, fn); err != nil {
				return err
			}
			continue
		}

		ref, err := d.ReadLooseRef(plumbing.ReferenceName(path))
		if err != nil {
			continue
		}
		if err := fn(ref); err != nil {
			return err
		}
	}
	return nil
}

// ReadPackedRefs parses the packed-refs file, if present. A missing
// file is not an error: it returns an empty slice.
func (d *DotGit) ReadPackedRefs() ([]*Ref, error) {
	f, err := d.fs.Open(packedRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []*Ref
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if line[0] == '^' {
			if len(out) == 0 {
				return nil, fmt.Errorf("dotgit: packed-refs: peeled line with no preceding ref")
			}
			h, err := hash.FromHex(line[1:])
			if err != nil {
				return nil, fmt.Errorf("dotgit: packed-refs: malformed peeled line: %w", err)
			}
			out[len(out)-1].Peeled = h
			out[len(out)-1].HasPeeled = true
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("dotgit: packed-refs: malformed line %q", line)
		}
		h, err := hash.FromHex(fields[0])
		if err != nil {
			return nil, fmt.Errorf("dotgit: packed-refs: malformed hash in %q: %w", line, err)
		}

		out = append(out, &Ref{
			Reference: plumbing.NewHashReference(plumbing.ReferenceName(fields[1]), h),
		})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// WritePackedRefs atomically replaces packed-refs with the given set,
// in the order given (callers are expected to have sorted by name,
// matching Git's own convention so the file stays diff-friendly).
func (d *DotGit) WritePackedRefs(refs []*Ref) error {
	tmp, err := d.fs.TempFile("", "tmp-packed-refs-")
	if err != nil {
		return err
	}

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString("# pack-refs with: peeled fully-peeled sorted\n"); err != nil {
		tmp.Close()
		d.fs.Remove(tmp.Name())
		return err
	}
	for _, r := range refs {
		if _, err := fmt.Fprintf(w, "%s %s\n", r.Reference.Hash().String(), r.Reference.Name()); err != nil {
			tmp.Close()
			d.fs.Remove(tmp.Name())
			return err
		}
		if r.HasPeeled {
			if _, err := fmt.Fprintf(w, "^%s\n", r.Peeled.String()); err != nil {
				tmp.Close()
				d.fs.Remove(tmp.Name())
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		d.fs.Remove(tmp.Name())
		return err
	}

	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		d.fs.Remove(tmpName)
		return err
	}

	return d.fs.Rename(tmpName, packedRefsPath)
}

// AppendReflog opens name's reflog for appending, creating its parent
// directory on first write, per spec §4.H's reflog policy.
func (d *DotGit) AppendReflog(name plumbing.ReferenceName) (billy.File, error) {
	path := d.fs.Join("logs", string(name))
	dir := parentOf(path)
	if dir != "" {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return d.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// HasReflog reports whether name already has a reflog file.
func (d *DotGit) HasReflog(name plumbing.ReferenceName) bool {
	_, err := d.fs.Stat(d.fs.Join("logs", string(name)))
	return err == nil
}
