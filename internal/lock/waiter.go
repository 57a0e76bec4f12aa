// Package lock implements the per-file waiter queue used to park lockFile
// (and open-with-O_LOCK) requests that cannot be granted immediately.
//
// A contended lock request is never allowed to block a worker goroutine: the
// caller records the request as a Waiter and returns to the pool, and the
// eventual unlock/close/remove on another goroutine calls the Waiter's
// Deliver function to hand the parked connection its deferred response. See
// DESIGN.md for the notes on suspension via parked requests.
package lock

import "github.com/marmos91/cachefsd/internal/wire"

// Waiter is one session's parked request against a single entry.
type Waiter struct {
	SessionID string
	Pathname  string

	// AlsoOpen is set when the parked request was open(O_LOCK) rather than a
	// bare lockFile: on grant the entry's opener set must also gain this
	// session, not just its lock_owner.
	AlsoOpen bool

	// Deliver sends the deferred response once this waiter is dequeued. It
	// must be called with the store's mutex already released: it performs
	// I/O on the parked connection.
	Deliver func(code wire.Code)
}

// Queue is the FIFO of waiters parked on one FileEntry, matching the
// ordered lock_waiters sequence from the data model.
type Queue struct {
	waiters []*Waiter
}

// NewQueue returns an empty waiter queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends w to the tail of the queue.
func (q *Queue) Enqueue(w *Waiter) {
	q.waiters = append(q.waiters, w)
}

// Dequeue pops and returns the head waiter, or nil if the queue is empty.
func (q *Queue) Dequeue() *Waiter {
	if len(q.waiters) == 0 {
		return nil
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	return w
}

// DequeueAll drains the queue and returns every waiter in FIFO order, used
// when an entry is destroyed (remove, or eviction) and every waiter must be
// woken with the same terminal code.
func (q *Queue) DequeueAll() []*Waiter {
	if len(q.waiters) == 0 {
		return nil
	}
	all := q.waiters
	q.waiters = nil
	return all
}

// Remove scrubs sessionID from the queue (session teardown on disconnect).
// Reports whether a waiter was found and removed.
func (q *Queue) Remove(sessionID string) bool {
	for i, w := range q.waiters {
		if w.SessionID == sessionID {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of parked waiters.
func (q *Queue) Len() int {
	return len(q.waiters)
}
