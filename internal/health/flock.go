// Package health provides the advisory-locking primitive shared by the
// single-instance session lock, the Astro-DB lock region, and the work
// queue's per-operation lock.
package health

import (
	"fmt"
	"os"
	"syscall"
)

// AcquireFlock attempts to acquire an exclusive, non-blocking file
// lock at path, creating the file if necessary. The returned handle
// must be kept open for as long as the lock is held; closing it (or
// calling ReleaseFlock) drops the lock.
func AcquireFlock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("flock: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: %s is held by another process: %w", path, err)
	}

	// Record the holder's PID for operator debugging; not load-bearing.
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	return f, nil
}

// AcquireFlockBlocking opens (creating if necessary) and exclusively
// locks path like AcquireFlock, but blocks until the lock is available
// instead of failing immediately, and leaves the file's contents
// untouched (no PID is written). Used by Astro-DB lock regions and the
// work queue, which must wait their turn rather than abort.
func AcquireFlockBlocking(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("flock: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: failed to acquire lock on %s: %w", path, err)
	}
	return f, nil
}

// ReleaseFlock unlocks and closes f. Unlike a single-instance lock
// file, callers that don't own the file's lifecycle (e.g. Astro-DB,
// which keeps reusing the same on-disk path across lock regions) use
// ReleaseFlockKeepFile instead.
func ReleaseFlock(f *os.File) {
	if f == nil {
		return
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	name := f.Name()
	f.Close()
	os.Remove(name)
}

// ReleaseFlockKeepFile unlocks and closes f without removing the
// backing file, for locks guarding a document that must persist.
func ReleaseFlockKeepFile(f *os.File) {
	if f == nil {
		return
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
}
