// Package store implements the in-memory file table: a concurrent mapping
// from pathname to FileEntry plus the global counters and replacement-order
// index the eviction engine consults. One coarse mutex protects all of it,
// matching the "correctness before performance" design note; callers pass a
// *Store handle explicitly rather than reaching for package-level state.
package store

import (
	"container/list"
	"sync"

	"github.com/marmos91/cachefsd/internal/lock"
	"github.com/marmos91/cachefsd/internal/wire"
)

type listElement = *list.Element

// Policy selects the eviction victim order. LRU (default) evicts by
// ascending last_use_tick; FIFO evicts by ascending creation_tick and never
// reorders an entry after insertion.
type Policy int

const (
	PolicyLRU Policy = iota
	PolicyFIFO
)

// ParsePolicy parses a replacement_policy config value.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "LRU", "lru", "":
		return PolicyLRU, true
	case "FIFO", "fifo":
		return PolicyFIFO, true
	default:
		return 0, false
	}
}

func (p Policy) String() string {
	if p == PolicyFIFO {
		return "FIFO"
	}
	return "LRU"
}

// EvictedFile is one victim's payload, staged for the EVICTED responses the
// admitting request must emit before its own terminal response.
type EvictedFile struct {
	Pathname string
	Content  []byte
}

// Result is the outcome of one store operation.
type Result struct {
	Code wire.Code

	// Deferred is true when the request was parked on a contended lock; the
	// caller must not emit a response now, the eventual grant will call the
	// onGrant/Deliver callback it supplied.
	Deferred bool

	// Content/ContentSize are populated by read and stat operations.
	Content     []byte
	ContentSize uint64

	// Evicted holds victim payloads that must be emitted (in order) before
	// the operation's own terminal response.
	Evicted []EvictedFile
}

// Stats is a point-in-time snapshot of store counters, used for the SIGHUP
// statistics dump and the shutdown summary (spec.md §5, §6).
type Stats struct {
	FilesInUse     int
	BytesInUse     int
	MaxFiles       int
	MaxBytes       int
	PeakFiles      int
	PeakBytes      int
	EvictionsTotal uint64
}

// Store is the concurrent file table. Zero value is not usable; use New.
type Store struct {
	mu sync.Mutex

	entries map[string]*FileEntry
	order   *list.List // Value = *FileEntry, front = eviction candidate

	maxFiles int
	maxBytes int
	policy   Policy

	tick uint64

	filesInUse int
	bytesInUse int

	peakFiles      int
	peakBytes      int
	evictionsTotal uint64
}

// New builds an empty store bounded by maxFiles/maxBytes.
func New(maxFiles, maxBytes int, policy Policy) *Store {
	return &Store{
		entries:  make(map[string]*FileEntry),
		order:    list.New(),
		maxFiles: maxFiles,
		maxBytes: maxBytes,
		policy:   policy,
	}
}

func (s *Store) touch(e *FileEntry) {
	s.tick++
	e.LastUseTick = s.tick
	if s.policy == PolicyLRU {
		s.order.MoveToBack(e.elem)
	}
}

func (s *Store) updatePeaksLocked() {
	if s.filesInUse > s.peakFiles {
		s.peakFiles = s.filesInUse
	}
	if s.bytesInUse > s.peakBytes {
		s.peakBytes = s.bytesInUse
	}
}

func (s *Store) insertLocked(pathname string) *FileEntry {
	s.tick++
	e := newFileEntry(pathname, s.tick)
	e.elem = s.order.PushBack(e)
	s.entries[pathname] = e
	s.filesInUse++
	s.updatePeaksLocked()
	return e
}

// removeLocked deletes e from the map and replacement-order list, adjusts
// counters, and returns its parked waiters (still undelivered: the caller
// must invoke their Deliver functions after releasing the store mutex).
func (s *Store) removeLocked(e *FileEntry) []*lock.Waiter {
	waiters := e.Waiters.DequeueAll()
	delete(s.entries, e.Pathname)
	s.order.Remove(e.elem)
	s.filesInUse--
	s.bytesInUse -= len(e.Content)
	return waiters
}

// promoteLocked hands the lock to the next waiter, if any, mutating
// LockOwner/Openers under the store mutex. It returns a thunk the caller
// must invoke after unlocking to deliver the deferred response.
func (s *Store) promoteLocked(e *FileEntry) func() {
	w := e.Waiters.Dequeue()
	if w == nil {
		return nil
	}
	e.LockOwner = w.SessionID
	if w.AlsoOpen {
		e.Openers[w.SessionID] = struct{}{}
	}
	return func() { w.Deliver(wire.CodeOK) }
}

// Open implements open(O_CREATE, O_LOCK) per spec.md §4.2. onGrant is called
// if the request must park waiting for a contended lock (only possible when
// O_LOCK is requested against an entry locked by another session).
func (s *Store) Open(sessionID, pathname string, flags int32, onGrant func(wire.Code)) Result {
	create := flags&wire.OCreate != 0
	wantLock := flags&wire.OLock != 0

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[pathname]

	if create {
		if exists {
			return Result{Code: wire.CodeAlreadyExists}
		}
		e = s.insertLocked(pathname)
		e.Openers[sessionID] = struct{}{}
		if wantLock {
			e.LockOwner = sessionID
		}
		s.touch(e)
		return Result{Code: wire.CodeOK}
	}

	if !exists {
		return Result{Code: wire.CodeNotFound}
	}

	if !wantLock {
		if e.LockOwner != "" && e.LockOwner != sessionID {
			return Result{Code: wire.CodeLockedByOther}
		}
		e.Openers[sessionID] = struct{}{}
		s.touch(e)
		return Result{Code: wire.CodeOK}
	}

	if e.LockOwner == "" || e.LockOwner == sessionID {
		e.LockOwner = sessionID
		e.Openers[sessionID] = struct{}{}
		s.touch(e)
		return Result{Code: wire.CodeOK}
	}

	e.Waiters.Enqueue(&lock.Waiter{SessionID: sessionID, Pathname: pathname, AlsoOpen: true, Deliver: onGrant})
	return Result{Deferred: true}
}

// Close implements close per spec.md §4.2/§4.4: removes the session from
// openers and, if it held the lock, releases it and promotes the next
// waiter.
func (s *Store) Close(sessionID, pathname string) Result {
	s.mu.Lock()
	e, exists := s.entries[pathname]
	if !exists {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotOpen}
	}
	if _, ok := e.Openers[sessionID]; !ok {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotOpen}
	}

	delete(e.Openers, sessionID)
	var deliver func()
	if e.LockOwner == sessionID {
		e.LockOwner = ""
		deliver = s.promoteLocked(e)
	}
	s.touch(e)
	s.mu.Unlock()

	if deliver != nil {
		deliver()
	}
	return Result{Code: wire.CodeOK}
}

// Read implements read per spec.md §4.2.
func (s *Store) Read(sessionID, pathname string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[pathname]
	if !exists {
		return Result{Code: wire.CodeNotOpen}
	}
	if _, ok := e.Openers[sessionID]; !ok {
		return Result{Code: wire.CodeNotOpen}
	}
	if e.LockOwner != "" && e.LockOwner != sessionID {
		return Result{Code: wire.CodeLockedByOther}
	}

	content := append([]byte(nil), e.Content...)
	s.touch(e)
	return Result{Code: wire.CodeOK, Content: content, ContentSize: uint64(len(content))}
}

// ReadN implements readN(N) per spec.md §4.2: up to n entries (all if n<=0)
// in replacement order from oldest, skipping entries locked by another
// session. The caller is responsible for appending the code=END sentinel.
func (s *Store) ReadN(sessionID string, n int32) []EvictedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []EvictedFile
	var count int32
	for el := s.order.Front(); el != nil; el = el.Next() {
		if n > 0 && count >= n {
			break
		}
		e := el.Value.(*FileEntry)
		if e.LockOwner != "" && e.LockOwner != sessionID {
			continue
		}
		out = append(out, EvictedFile{Pathname: e.Pathname, Content: append([]byte(nil), e.Content...)})
		count++
	}
	return out
}

// Write implements write per spec.md §4.2. preconditionOK reflects the
// per-(session,pathname) "just-created-locked" token tracked by the caller
// (internal/session), per the design note that the token lives on the
// session rather than the entry.
func (s *Store) Write(sessionID, pathname string, content []byte, preconditionOK bool) Result {
	if len(content) > wire.MaxCharacters {
		return Result{Code: wire.CodeFileTooLarge}
	}

	s.mu.Lock()
	e, exists := s.entries[pathname]
	if !exists || !preconditionOK || e.LockOwner != sessionID {
		s.mu.Unlock()
		return Result{Code: wire.CodePreconditionFailed}
	}

	deltaBytes := len(content) - len(e.Content)
	evicted, victimWaiters, ok := s.admitLocked(e, deltaBytes, 0)
	if !ok {
		s.mu.Unlock()
		return Result{Code: wire.CodeFileTooLarge}
	}

	s.bytesInUse += deltaBytes
	e.Content = append([]byte(nil), content...)
	s.touch(e)
	s.updatePeaksLocked()
	s.mu.Unlock()

	for _, w := range victimWaiters {
		w.Deliver(wire.CodeRemoved)
	}
	return Result{Code: wire.CodeOK, Evicted: evicted}
}

// Append implements append per spec.md §4.2.
func (s *Store) Append(sessionID, pathname string, content []byte) Result {
	s.mu.Lock()
	e, exists := s.entries[pathname]
	if !exists {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotOpen}
	}
	if _, ok := e.Openers[sessionID]; !ok {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotOpen}
	}
	if e.LockOwner != "" && e.LockOwner != sessionID {
		s.mu.Unlock()
		return Result{Code: wire.CodeLockedByOther}
	}
	if len(e.Content)+len(content) > wire.MaxCharacters {
		s.mu.Unlock()
		return Result{Code: wire.CodeFileTooLarge}
	}

	evicted, victimWaiters, ok := s.admitLocked(e, len(content), 0)
	if !ok {
		s.mu.Unlock()
		return Result{Code: wire.CodeFileTooLarge}
	}

	e.Content = append(e.Content, content...)
	s.bytesInUse += len(content)
	s.touch(e)
	s.updatePeaksLocked()
	s.mu.Unlock()

	for _, w := range victimWaiters {
		w.Deliver(wire.CodeRemoved)
	}
	return Result{Code: wire.CodeOK, Evicted: evicted}
}

// Remove implements remove per spec.md §4.2: the caller must be lock_owner.
func (s *Store) Remove(sessionID, pathname string) Result {
	s.mu.Lock()
	e, exists := s.entries[pathname]
	if !exists {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotFound}
	}
	if e.LockOwner != sessionID {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotLockedByCaller}
	}

	waiters := s.removeLocked(e)
	s.mu.Unlock()

	for _, w := range waiters {
		w.Deliver(wire.CodeRemoved)
	}
	return Result{Code: wire.CodeOK}
}

// Lock implements lockFile per spec.md §4.2/§4.4.
func (s *Store) Lock(sessionID, pathname string, onGrant func(wire.Code)) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[pathname]
	if !exists {
		return Result{Code: wire.CodeNotFound}
	}
	if e.LockOwner == "" || e.LockOwner == sessionID {
		e.LockOwner = sessionID
		s.touch(e)
		return Result{Code: wire.CodeOK}
	}

	e.Waiters.Enqueue(&lock.Waiter{SessionID: sessionID, Pathname: pathname, Deliver: onGrant})
	return Result{Deferred: true}
}

// Unlock implements unlockFile per spec.md §4.2/§4.4.
func (s *Store) Unlock(sessionID, pathname string) Result {
	s.mu.Lock()
	e, exists := s.entries[pathname]
	if !exists {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotFound}
	}
	if e.LockOwner != sessionID {
		s.mu.Unlock()
		return Result{Code: wire.CodeNotLockedByCaller}
	}

	e.LockOwner = ""
	deliver := s.promoteLocked(e)
	s.touch(e)
	s.mu.Unlock()

	if deliver != nil {
		deliver()
	}
	return Result{Code: wire.CodeOK}
}

// Stat implements the additive STAT command (supplemented from the
// original source's find_size helper, see SPEC_FULL.md §C).
func (s *Store) Stat(pathname string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[pathname]
	if !exists {
		return Result{Code: wire.CodeNotFound}
	}
	return Result{Code: wire.CodeOK, ContentSize: uint64(len(e.Content))}
}

// CancelWaiter scrubs sessionID from pathname's waiter queue, used during
// session teardown on disconnect (spec.md §4.4, §4.6).
func (s *Store) CancelWaiter(pathname, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[pathname]
	if !exists {
		return false
	}
	return e.Waiters.Remove(sessionID)
}

// Stats returns a snapshot of store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		FilesInUse:     s.filesInUse,
		BytesInUse:     s.bytesInUse,
		MaxFiles:       s.maxFiles,
		MaxBytes:       s.maxBytes,
		PeakFiles:      s.peakFiles,
		PeakBytes:      s.peakBytes,
		EvictionsTotal: s.evictionsTotal,
	}
}
