package store

import "github.com/marmos91/cachefsd/internal/lock"

// FileEntry is one stored file: pathname, content, and its open/lock
// metadata. The replacement-order position (elem) is owned by Store.
type FileEntry struct {
	Pathname string
	Content  []byte

	// Openers is the set of session identities that have this file open.
	Openers map[string]struct{}

	// LockOwner is the session identity holding the exclusive lock, or ""
	// if the entry is unlocked.
	LockOwner string

	Waiters *lock.Queue

	LastUseTick  uint64
	CreationTick uint64

	elem listElement
}

func newFileEntry(pathname string, tick uint64) *FileEntry {
	return &FileEntry{
		Pathname:     pathname,
		Openers:      make(map[string]struct{}),
		Waiters:      lock.NewQueue(),
		LastUseTick:  tick,
		CreationTick: tick,
	}
}
