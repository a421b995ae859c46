// Package astrodb implements the Astro-DB JUID store: a content
// addressed, file-locked JSON document recording every exposure,
// stack, analysis, and directive an observing session produces.
//
// Grounded on internal/store's constructor/method shape (Open,
// typed Add* methods returning an allocated ID) and
// internal/health's flock-based single-instance lock, generalized
// here into a nestable lock region held only while mutating the
// document rather than for the lifetime of the process.
package astrodb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/antigravity-dev/astrosession/internal/health"
	"github.com/antigravity-dev/astrosession/internal/jnode"
)

// Mode selects whether a Store may mutate its document.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// List names, in the fixed top-level key order required by §6.
const (
	ListSession     = "session"
	ListExposures   = "exposures"
	ListStacks      = "stacks"
	ListInstMags    = "inst_mags"
	ListDirectives  = "directives"
	ListAnalyses    = "analyses"
	ListSets        = "sets"
	ListSubmissions = "submissions"
)

var topLevelOrder = []string{
	ListSession, ListExposures, ListStacks, ListInstMags,
	ListDirectives, ListAnalyses, ListSets, ListSubmissions,
}

// juidBase maps a list name to its JUID bucket base, per §6.
var juidBase = map[string]int64{
	ListSession:     1_000_000,
	ListExposures:   2_000_000,
	ListAnalyses:    3_000_000,
	ListInstMags:    4_000_000,
	ListSets:        5_000_000,
	ListStacks:      6_000_000,
	ListDirectives:  7_000_000,
	ListSubmissions: 8_000_000,
}

// FatalError marks an error class §7 designates as fatal: the process
// should abort rather than attempt to continue against a store that
// may be in an inconsistent state.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("astrodb: fatal: %s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func fatalf(op string, err error) error { return &FatalError{Op: op, Err: err} }

// PathForDate resolves the canonical on-disk path for a date under an
// image root, matching §4.1's "<image-root>/<date>/astro_db.json".
func PathForDate(imageRoot, date string) string {
	return filepath.Join(imageRoot, date, "astro_db.json")
}

// Store is a single Astro-DB document, guarded by a nestable lock
// region and optionally mirrored into a SQLite query index.
type Store struct {
	mu   sync.Mutex
	path string
	mode Mode

	lockDepth     int
	lockedFile    *os.File
	tree          jnode.Node
	loaded        bool
	timeOfRelease time.Time

	index *QueryIndex
}

// Open opens (or, in ReadWrite mode, creates) the Astro-DB document
// at path. A freshly created document contains the eight empty lists
// immediately, on disk, matching scenario S1.
func Open(path string, mode Mode) (*Store, error) {
	s := &Store{path: path, mode: mode}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fatalf("stat", err)
		}
		if mode == ReadOnly {
			return nil, fmt.Errorf("astrodb: %s does not exist (read-only open)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fatalf("mkdir", err)
		}
		if err := s.BeginLockRegion(); err != nil {
			return nil, err
		}
		if err := s.BeginReleaseRegion(); err != nil {
			return nil, err
		}
		return s, nil
	}

	// Existing file: lock once to populate the in-memory tree and the
	// query index, then release — Open does not hold the lock.
	if err := s.BeginLockRegion(); err != nil {
		return nil, err
	}
	if err := s.BeginReleaseRegion(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases any resources held by the store. It is an error to
// Close a store with an open lock region.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockDepth != 0 {
		return fmt.Errorf("astrodb: Close called with %d open lock region(s)", s.lockDepth)
	}
	if s.index != nil {
		s.index.Close()
		s.index = nil
	}
	return nil
}

// BeginLockRegion enters (or re-enters, if already inside one) a
// locked region: the first entry acquires the OS-level exclusive file
// lock and, if the on-disk mtime advanced past the last release,
// reparses the document from disk.
func (s *Store) BeginLockRegion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockDepth > 0 {
		s.lockDepth++
		return nil
	}

	f, err := health.AcquireFlockBlocking(s.path)
	if err != nil {
		return fatalf("lock", err)
	}

	needsReparse := !s.loaded
	if !needsReparse {
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return fatalf("stat", statErr)
		}
		if info.ModTime().After(s.timeOfRelease) {
			needsReparse = true
		}
	}

	if needsReparse {
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return fatalf("stat", statErr)
		}
		if info.Size() == 0 {
			s.tree = emptyDocument()
		} else {
			if _, err := f.Seek(0, 0); err != nil {
				f.Close()
				return fatalf("seek", err)
			}
			tree, err := jnode.Parse(f)
			if err != nil {
				f.Close()
				return fatalf("parse", err)
			}
			if err := jnode.Validate(tree); err != nil {
				f.Close()
				return fatalf("validate", err)
			}
			s.tree = tree
		}
		s.loaded = true
	}

	s.lockedFile = f
	s.lockDepth = 1
	s.rebuildIndexLocked()
	return nil
}

// BeginReleaseRegion leaves the innermost locked region. On the
// outermost release it validates the tree, truncates and rewrites the
// file, records the release timestamp, and drops the lock by closing
// the file descriptor.
func (s *Store) BeginReleaseRegion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockDepth == 0 {
		return fmt.Errorf("astrodb: BeginReleaseRegion called without a matching BeginLockRegion")
	}
	if s.lockDepth > 1 {
		s.lockDepth--
		return nil
	}

	if s.mode == ReadWrite {
		if err := jnode.Validate(s.tree); err != nil {
			return fatalf("validate", err)
		}
		if err := s.lockedFile.Truncate(0); err != nil {
			return fatalf("truncate", err)
		}
		if _, err := s.lockedFile.Seek(0, 0); err != nil {
			return fatalf("seek", err)
		}
		if err := jnode.Write(s.lockedFile, s.tree); err != nil {
			return fatalf("write", err)
		}
		if err := s.lockedFile.Sync(); err != nil {
			return fatalf("sync", err)
		}
	}

	s.timeOfRelease = time.Now()
	health.ReleaseFlockKeepFile(s.lockedFile)
	// Force mtime forward so the write-read round-trip / lock-safety
	// invariant (mtime >= time_of_release) holds even on filesystems
	// with coarse mtime resolution.
	os.Chtimes(s.path, s.timeOfRelease, s.timeOfRelease)

	s.lockedFile = nil
	s.lockDepth = 0
	return nil
}

func emptyDocument() jnode.Node {
	assignments := make([]jnode.Node, 0, len(topLevelOrder))
	for _, name := range topLevelOrder {
		assignments = append(assignments, jnode.Assign(name, jnode.List()))
	}
	return jnode.Seq(assignments...)
}

// listFor returns the items of the top-level list name; setList
// writes a replacement list back.
func (s *Store) listFor(name string) ([]jnode.Node, error) {
	v, ok := s.tree.Get(name)
	if !ok {
		return nil, fatalf("listFor", fmt.Errorf("missing top-level list %q", name))
	}
	return v.Items(), nil
}

func (s *Store) setList(name string, items []jnode.Node) {
	s.tree = s.tree.With(name, jnode.List(items...))
}

// bucketFor returns the list name a JUID belongs to.
func bucketFor(juid int64) (string, error) {
	bucket := juid / 1_000_000
	for name, base := range juidBase {
		if base/1_000_000 == bucket {
			return name, nil
		}
	}
	return "", fmt.Errorf("astrodb: juid %d does not map to a known bucket", juid)
}

// nextJUID returns max(existing juids in list)+1, or the list's base
// if the list is empty. Must be called with the lock held.
func (s *Store) nextJUID(list string) (int64, error) {
	items, err := s.listFor(list)
	if err != nil {
		return 0, err
	}
	base := juidBase[list]
	max := base - 1
	for _, item := range items {
		v, ok := item.Get("juid")
		if !ok {
			continue
		}
		if v.IntVal() > max {
			max = v.IntVal()
		}
	}
	if max < base {
		return base, nil
	}
	return max + 1, nil
}

// FindByJUID performs the linear scan of the single list the JUID
// buckets into.
func (s *Store) FindByJUID(juid int64) (jnode.Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := bucketFor(juid)
	if err != nil {
		return jnode.Node{}, false, err
	}
	items, err := s.listFor(list)
	if err != nil {
		return jnode.Node{}, false, err
	}
	for _, item := range items {
		if v, ok := item.Get("juid"); ok && v.IntVal() == juid {
			return item, true, nil
		}
	}
	return jnode.Node{}, false, nil
}

// DeleteEntryForJUID removes the record with the given JUID from its
// bucketed list.
func (s *Store) DeleteEntryForJUID(juid int64) error {
	return s.withLock(func() error {
		list, err := bucketFor(juid)
		if err != nil {
			return err
		}
		items, err := s.listFor(list)
		if err != nil {
			return err
		}
		out := make([]jnode.Node, 0, len(items))
		for _, item := range items {
			if v, ok := item.Get("juid"); ok && v.IntVal() == juid {
				continue
			}
			out = append(out, item)
		}
		s.setList(list, out)
		return nil
	})
}

// withLock runs fn inside a lock region, composing with any
// lock region the caller already holds.
func (s *Store) withLock(fn func() error) error {
	if err := s.BeginLockRegion(); err != nil {
		return err
	}
	defer s.BeginReleaseRegion()
	return fn()
}

func now() int64 { return time.Now().Unix() }
