// Package workqueue implements the persistent FIFO queue a session
// uses to hand scheduled observing actions to its executor: a single
// append-only file of fixed-width-header records, tombstoned rather
// than removed on completion, read by every collaborating process
// through an advisory file lock.
//
// Grounded on original_source/DATA_LIB/work_queue.{h,cc}: same record
// header format, same lock-sync-scan algorithm, same UID allocation
// rule. Blocking waits use fsnotify instead of a raw inotify file
// descriptor, since that is the idiomatic Go wrapper for the same
// kernel facility the original reaches for directly.
package workqueue

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/antigravity-dev/astrosession/internal/health"
)

// UID identifies one record in the queue. There is no "none" sentinel
// value used by this package; callers that need one define it at the
// call site (the original's WQ_None is specific to its polling loop).
type UID int64

const (
	headerWidth  = 12 // "%06d %05d"
	recLenWidth  = 6
	recUIDWidth  = 5
	tombstone    = "DONE"
	uidStride    = 7
	uidBase      = 1000
	pollBufBytes = 4096
)

// lineInfo locates one record within the backing file.
type lineInfo struct {
	uid        UID
	lineStart  int64
	lineLength int64
}

// Queue is a single work-queue file.
type Queue struct {
	mu       sync.Mutex
	path     string
	allLines []lineInfo
}

// Open ensures the queue file exists at dir/work.queue and returns a
// handle to it. It does not hold any lock; every operation acquires
// and releases the file lock itself.
func Open(dir string) (*Queue, error) {
	path := filepath.Join(dir, "work.queue")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("workqueue: create %s: %w", path, err)
	}
	f.Close()
	q := &Queue{path: path}
	if err := q.sync(); err != nil {
		return nil, err
	}
	return q, nil
}

// sync rescans the file from disk, rebuilding allLines. The caller
// must hold the file lock (or be certain of exclusive access, as at
// Open time).
func (q *Queue) sync() error {
	f, err := os.Open(q.path)
	if err != nil {
		return fmt.Errorf("workqueue: sync: open: %w", err)
	}
	defer f.Close()

	var lines []lineInfo
	r := bufio.NewReader(f)
	var offset int64
	for {
		header := make([]byte, headerWidth)
		n, err := io.ReadFull(r, header)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			return fmt.Errorf("workqueue: sync: read header: %w", err)
		}

		var recLen int64
		var uid UID
		if _, err := fmt.Sscanf(string(header), "%d %d", &recLen, &uid); err != nil {
			return fmt.Errorf("workqueue: sync: malformed header %q: %w", header, err)
		}

		lines = append(lines, lineInfo{uid: uid, lineStart: offset, lineLength: recLen})

		remaining := recLen - headerWidth
		if remaining > 0 {
			if _, err := io.CopyN(io.Discard, r, remaining); err != nil {
				return fmt.Errorf("workqueue: sync: skip payload: %w", err)
			}
		}
		offset += recLen
	}

	q.allLines = lines
	return nil
}

// AddToQueue appends task as a new record and returns its UID.
func (q *Queue) AddToQueue(task string) (UID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lock, err := health.AcquireFlockBlocking(q.path)
	if err != nil {
		return 0, fmt.Errorf("workqueue: AddToQueue: %w", err)
	}
	defer health.ReleaseFlockKeepFile(lock)

	if err := q.sync(); err != nil {
		return 0, err
	}

	uid := UID(len(q.allLines)*uidStride + uidBase)
	payload := task
	recLen := int64(headerWidth + 1 + len(payload)) // +1 for trailing newline
	line := fmt.Sprintf("%0*d %0*d%s\n", recLenWidth, recLen, recUIDWidth, uid, payload)

	f, err := os.OpenFile(q.path, os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("workqueue: AddToQueue: reopen: %w", err)
	}
	defer f.Close()

	lineStart, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("workqueue: AddToQueue: seek: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		return 0, fmt.Errorf("workqueue: AddToQueue: write: %w", err)
	}

	q.allLines = append(q.allLines, lineInfo{uid: uid, lineStart: lineStart, lineLength: recLen})
	return uid, nil
}

// GetLine returns the payload recorded under uid.
func (q *Queue) GetLine(uid UID) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lock, err := health.AcquireFlockBlocking(q.path)
	if err != nil {
		return "", fmt.Errorf("workqueue: GetLine: %w", err)
	}
	defer health.ReleaseFlockKeepFile(lock)

	li := q.findUID(uid)
	if li == nil {
		return "", fmt.Errorf("workqueue: GetLine: unknown uid %d", uid)
	}

	f, err := os.Open(q.path)
	if err != nil {
		return "", fmt.Errorf("workqueue: GetLine: %w", err)
	}
	defer f.Close()

	buf := make([]byte, li.lineLength)
	if _, err := f.ReadAt(buf, li.lineStart); err != nil {
		return "", fmt.Errorf("workqueue: GetLine: read: %w", err)
	}
	payload := buf[headerWidth:]
	// strip the trailing newline
	if n := len(payload); n > 0 && payload[n-1] == '\n' {
		payload = payload[:n-1]
	}
	return string(payload), nil
}

// DeleteLine overwrites a record's payload with a DONE tombstone,
// leaving its length (and every later record's offset) unchanged.
func (q *Queue) DeleteLine(uid UID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lock, err := health.AcquireFlockBlocking(q.path)
	if err != nil {
		return fmt.Errorf("workqueue: DeleteLine: %w", err)
	}
	defer health.ReleaseFlockKeepFile(lock)

	if err := q.sync(); err != nil {
		return err
	}
	li := q.findUID(uid)
	if li == nil {
		return fmt.Errorf("workqueue: DeleteLine: unknown uid %d", uid)
	}

	f, err := os.OpenFile(q.path, os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("workqueue: DeleteLine: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte(tombstone), li.lineStart+headerWidth); err != nil {
		return fmt.Errorf("workqueue: DeleteLine: write: %w", err)
	}
	return nil
}

// IsDone reports whether uid's payload has been tombstoned.
func (q *Queue) IsDone(uid UID) (bool, error) {
	payload, err := q.GetLine(uid)
	if err != nil {
		return false, err
	}
	return len(payload) >= len(tombstone) && payload[:len(tombstone)] == tombstone, nil
}

func (q *Queue) findUID(uid UID) *lineInfo {
	for i := range q.allLines {
		if q.allLines[i].uid == uid {
			return &q.allLines[i]
		}
	}
	return nil
}

// GetFirstLineUID returns the UID of the oldest record, blocking until
// one is available.
func (q *Queue) GetFirstLineUID() (UID, error) {
	for {
		q.mu.Lock()
		lock, err := health.AcquireFlockBlocking(q.path)
		if err != nil {
			q.mu.Unlock()
			return 0, err
		}
		if err := q.sync(); err != nil {
			health.ReleaseFlockKeepFile(lock)
			q.mu.Unlock()
			return 0, err
		}
		if len(q.allLines) > 0 {
			uid := q.allLines[0].uid
			health.ReleaseFlockKeepFile(lock)
			q.mu.Unlock()
			return uid, nil
		}
		health.ReleaseFlockKeepFile(lock)
		q.mu.Unlock()

		if err := q.waitForChange(); err != nil {
			return 0, err
		}
	}
}

// NextUIDWait returns the UID immediately following uid, blocking
// until the queue grows past it.
func (q *Queue) NextUIDWait(uid UID) (UID, error) {
	for {
		q.mu.Lock()
		lock, err := health.AcquireFlockBlocking(q.path)
		if err != nil {
			q.mu.Unlock()
			return 0, err
		}
		if err := q.sync(); err != nil {
			health.ReleaseFlockKeepFile(lock)
			q.mu.Unlock()
			return 0, err
		}

		var next UID
		found := false
		haveUID := false
		for _, li := range q.allLines {
			if found {
				next = li.uid
				haveUID = true
				break
			}
			if li.uid == uid {
				found = true
			}
		}
		health.ReleaseFlockKeepFile(lock)
		q.mu.Unlock()

		if !found {
			return 0, fmt.Errorf("workqueue: NextUIDWait: unknown uid %d", uid)
		}
		if haveUID {
			return next, nil
		}
		if err := q.waitForChange(); err != nil {
			return 0, err
		}
	}
}

// waitForChange blocks until the queue file is modified.
func (q *Queue) waitForChange() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("workqueue: waitForChange: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(q.path); err != nil {
		return fmt.Errorf("workqueue: waitForChange: watch: %w", err)
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("workqueue: waitForChange: watcher closed")
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("workqueue: waitForChange: watcher closed")
			}
			return fmt.Errorf("workqueue: waitForChange: %w", err)
		}
	}
}
