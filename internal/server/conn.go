package server

import (
	"bufio"
	"net"
	"sync"

	"github.com/marmos91/cachefsd/internal/session"
)

// connState is one accepted connection's mutable state: a buffered reader
// (so the portable poller can Peek without consuming a byte), the session
// it belongs to, and the per-fd write guard spec.md §5 requires so that an
// EVICTED response followed by its admitting request's terminal response
// reach the wire as one contiguous sequence even when a different worker
// interleaves a deferred delivery on the same connection.
type connState struct {
	conn      *net.UnixConn
	reader    *bufio.Reader
	sessionID string
	session   *session.Session

	writeMu sync.Mutex

	// rawFd is the connection's underlying file descriptor, populated by
	// poller.add on Linux (see poller_linux.go) and left at -1 elsewhere.
	rawFd int
}

func newConnState(conn *net.UnixConn, sessionID string, sess *session.Session) *connState {
	return &connState{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		sessionID: sessionID,
		session:   sess,
		rawFd:     -1,
	}
}
