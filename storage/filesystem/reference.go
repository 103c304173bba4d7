package filesystem

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gitbridge/gitodb/config"
	"github.com/gitbridge/gitodb/plumbing"
	"github.com/gitbridge/gitodb/plumbing/storer"
	"github.com/gitbridge/gitodb/storage/filesystem/dotgit"
)

// ErrNameConflict is returned when a proposed reference name collides
// with the namespace of an existing one: an ancestor path segment of
// the proposal already names a ref, or the proposal is itself a
// path-prefix of an existing ref's name (spec §4.H's name-conflict
// check).
var ErrNameConflict = fmt.Errorf("storage: reference name conflicts with an existing reference")

// maxSymbolicHops bounds symbolic reference resolution, per spec
// §4.H ("resolution walks targets up to 5 hops").
const maxSymbolicHops = 5

// searchPrefixes is the read-path candidate order §4.H specifies: try
// the name bare, then under each of these namespaces, first hit wins.
var searchPrefixes = []string{"", "refs/", "refs/tags/", "refs/heads/", "refs/remotes/"}

// ReferenceStorage implements storer.ReferenceStorer over loose ref
// files and a packed-refs file, grounded on the teacher's
// storage/filesystem/dotgit ref read/write/packed-refs machinery,
// generalized to this engine's own plumbing.Reference type.
type ReferenceStorage struct {
	dir *dotgit.DotGit
	cfg *config.Config

	mu int64 // mod_count, bumped on every observed change (spec §4.H)

	peelMu    sync.Mutex
	peelCache map[plumbing.ReferenceName]peelCacheEntry
}

// peelCacheEntry is a memoized Peel result, valid only as long as
// modCount matches the store's mod_count at lookup time: any
// SetReference/CheckAndSetReference/RemoveReference bumps mod_count,
// which invalidates every entry at once (spec §8: "peeling a tag
// twice results in exactly one tag-walk ... second call is served
// from the in-memory ref").
type peelCacheEntry struct {
	modCount int64
	peeled   plumbing.Hash
}

// NewReferenceStorage returns a ReferenceStorage rooted at dg, consulting
// cfg for the reflog policy (core.logAllRefUpdates).
func NewReferenceStorage(dg *dotgit.DotGit, cfg *config.Config) *ReferenceStorage {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &ReferenceStorage{dir: dg, cfg: cfg, peelCache: make(map[plumbing.ReferenceName]peelCacheEntry)}
}

// SetReference stores ref unconditionally, without a compare-and-swap
// guard.
func (r *ReferenceStorage) SetReference(ref *plumbing.Reference) error {
	return r.checkAndSet(ref, nil, false)
}

// CheckAndSetReference stores ref only if the current value for its
// name equals old (nil meaning "must not currently exist").
func (r *ReferenceStorage) CheckAndSetReference(ref, old *plumbing.Reference) error {
	return r.checkAndSet(ref, old, true)
}

func (r *ReferenceStorage) checkAndSet(ref, old *plumbing.Reference, guard bool) error {
	if ref == nil {
		return nil
	}
	if err := ref.Name().Validate(); err != nil {
		return err
	}

	if guard {
		current, err := r.Reference(ref.Name())
		if err != nil && err != plumbing.ErrReferenceNotFound {
			return err
		}
		if old == nil {
			if err == nil {
				return storer.ErrReferenceHasChanged
			}
		} else {
			if err != nil || current.Hash() != old.Hash() {
				return storer.ErrReferenceHasChanged
			}
		}
	}

	if err := r.checkNameConflict(ref.Name()); err != nil {
		return err
	}

	if err := r.dir.WriteLooseRef(ref); err != nil {
		return err
	}

	if r.shouldLog(ref.Name()) {
		if err := r.appendReflog(ref, old); err != nil {
			return err
		}
	}

	r.bump()
	return nil
}

// checkNameConflict implements spec §4.H's two conditions: an
// ancestor path segment of name already names a ref, or an existing
// ref's name begins with "name/".
func (r *ReferenceStorage) checkNameConflict(name plumbing.ReferenceName) error {
	s := string(name)
	parts := strings.Split(s, "/")
	for i := 1; i < len(parts); i++ {
		ancestor := strings.Join(parts[:i], "/")
		if ancestor == "" {
			continue
		}
		if _, err := r.lookupDirect(plumbing.ReferenceName(ancestor)); err == nil {
			return fmt.Errorf("%w: %q", ErrNameConflict, ancestor)
		}
	}

	prefix := s + "/"
	conflict := false
	err := r.forEachRaw(func(existing *plumbing.Reference) error {
		if strings.HasPrefix(string(existing.Name()), prefix) {
			conflict = true
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && err != storer.ErrStop {
		return err
	}
	if conflict {
		return fmt.Errorf("%w: existing ref under %q", ErrNameConflict, s)
	}

	return nil
}

// Reference resolves name, trying each candidate prefix in the
// standard search order and following symbolic targets up to 5 hops.
func (r *ReferenceStorage) Reference(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := r.resolve(name, 0)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *ReferenceStorage) resolve(name plumbing.ReferenceName, hops int) (*plumbing.Reference, error) {
	if hops > maxSymbolicHops {
		return nil, plumbing.ErrReferenceNotFound
	}

	ref, err := r.lookupWithPrefixes(name)
	if err != nil {
		return nil, err
	}
	if ref.Type() != plumbing.SymbolicReference {
		return ref, nil
	}
	return r.resolve(ref.Target(), hops+1)
}

func (r *ReferenceStorage) lookupWithPrefixes(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	s := string(name)
	for _, prefix := range searchPrefixes {
		candidate := plumbing.ReferenceName(prefix + s)
		if ref, err := r.lookupDirect(candidate); err == nil {
			return ref, nil
		}
	}
	return nil, plumbing.ErrReferenceNotFound
}

// lookupDirect resolves exactly name (no prefix search, no symbolic
// following), trying the loose file first and packed-refs second.
func (r *ReferenceStorage) lookupDirect(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	if ref, err := r.dir.ReadLooseRef(name); err == nil {
		return ref, nil
	}

	packed, err := r.dir.ReadPackedRefs()
	if err != nil {
		return nil, err
	}
	for _, p := range packed {
		if p.Reference.Name() == name {
			return p.Reference, nil
		}
	}

	return nil, plumbing.ErrReferenceNotFound
}

// IterReferences returns every reference: loose refs, then any
// packed-refs entries not shadowed by a loose file of the same name.
func (r *ReferenceStorage) IterReferences() (storer.ReferenceIter, error) {
	var refs []*plumbing.Reference
	seen := make(map[plumbing.ReferenceName]bool)

	if err := r.forEachRaw(func(ref *plumbing.Reference) error {
		refs = append(refs, ref)
		seen[ref.Name()] = true
		return nil
	}); err != nil {
		return nil, err
	}

	packed, err := r.dir.ReadPackedRefs()
	if err != nil {
		return nil, err
	}
	for _, p := range packed {
		if !seen[p.Reference.Name()] {
			refs = append(refs, p.Reference)
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name() < refs[j].Name() })

	return storer.NewReferenceSliceIter(refs), nil
}

func (r *ReferenceStorage) forEachRaw(fn func(*plumbing.Reference) error) error {
	return r.dir.WalkLooseRefs(fn)
}

// RemoveReference deletes name from both the loose and packed-refs
// stores (spec §4.H's delete algorithm).
func (r *ReferenceStorage) RemoveReference(name plumbing.ReferenceName) error {
	packed, err := r.dir.ReadPackedRefs()
	if err != nil {
		return err
	}

	filtered := packed[:0]
	changed := false
	for _, p := range packed {
		if p.Reference.Name() == name {
			changed = true
			continue
		}
		filtered = append(filtered, p)
	}
	if changed {
		if err := r.dir.WritePackedRefs(filtered); err != nil {
			return err
		}
	}

	if err := r.dir.DeleteLooseRef(name); err != nil {
		return err
	}

	r.bump()
	return nil
}

// CountLooseRefs returns the number of loose reference files present
// (packed refs are not counted, matching the distinction the name
// implies).
func (r *ReferenceStorage) CountLooseRefs() (int, error) {
	count := 0
	err := r.forEachRaw(func(*plumbing.Reference) error {
		count++
		return nil
	})
	return count, err
}

// Peel resolves ref, if it names an annotated tag, down to the
// underlying non-tag object; a ref already pointing at a
// commit/tree/blob is returned unchanged. A result already recorded in
// packed-refs' peeled line, or already computed since the last
// observed mutation, is served without a tag-walk (spec §8: peeling a
// tag twice costs exactly one walk).
func (r *ReferenceStorage) Peel(ref *plumbing.Reference, deref func(plumbing.Hash) (plumbing.ObjectType, plumbing.Hash, error)) (plumbing.Hash, error) {
	name := ref.Name()
	current := r.ModCount()

	r.peelMu.Lock()
	if e, ok := r.peelCache[name]; ok && e.modCount == current {
		r.peelMu.Unlock()
		return e.peeled, nil
	}
	r.peelMu.Unlock()

	if peeled, ok, err := r.packedPeel(name); err != nil {
		return plumbing.ZeroHash, err
	} else if ok {
		r.storePeel(name, current, peeled)
		return peeled, nil
	}

	h := ref.Hash()
	for hops := 0; hops < maxSymbolicHops; hops++ {
		t, target, err := deref(h)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if t != plumbing.TagObject {
			r.storePeel(name, current, h)
			return h, nil
		}
		h = target
	}
	return plumbing.ZeroHash, fmt.Errorf("storage: tag chain too deep peeling %s", ref.Name())
}

// packedPeel reports the peeled hash already recorded for name in
// packed-refs' "^<peeled-id>" line, when one exists, sparing a fresh
// tag-walk for any packed annotated tag.
func (r *ReferenceStorage) packedPeel(name plumbing.ReferenceName) (plumbing.Hash, bool, error) {
	packed, err := r.dir.ReadPackedRefs()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	for _, p := range packed {
		if p.Reference.Name() == name && p.HasPeeled {
			return p.Peeled, true, nil
		}
	}
	return plumbing.ZeroHash, false, nil
}

func (r *ReferenceStorage) storePeel(name plumbing.ReferenceName, modCount int64, peeled plumbing.Hash) {
	r.peelMu.Lock()
	r.peelCache[name] = peelCacheEntry{modCount: modCount, peeled: peeled}
	r.peelMu.Unlock()
}

func (r *ReferenceStorage) shouldLog(name plumbing.ReferenceName) bool {
	if r.dir.HasReflog(name) {
		return true
	}
	if !r.cfg.Core.LogAllRefUpdates {
		return false
	}
	s := string(name)
	return s == "HEAD" || name.IsBranch() || name.IsRemote() || s == "refs/stash"
}

func (r *ReferenceStorage) appendReflog(ref, old *plumbing.Reference) error {
	f, err := r.dir.AppendReflog(ref.Name())
	if err != nil {
		return err
	}
	defer f.Close()

	oldHash := plumbing.ZeroHash
	if old != nil {
		oldHash = old.Hash()
	}

	line := fmt.Sprintf("%s %s %d +0000\n", oldHash.String(), ref.Hash().String(), time.Now().Unix())
	_, err = f.Write([]byte(line))
	return err
}

var bumpMu sync.Mutex

func (r *ReferenceStorage) bump() {
	bumpMu.Lock()
	r.mu++
	bumpMu.Unlock()
}

// ModCount returns the number of observed changes so far, for callers
// that want to detect whether a cached snapshot is still current.
func (r *ReferenceStorage) ModCount() int64 {
	bumpMu.Lock()
	defer bumpMu.Unlock()
	return r.mu
}
