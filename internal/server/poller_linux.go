//go:build linux

package server

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// poller is the acceptor's readiness primitive on Linux (spec.md §4.5),
// implemented with epoll. An eventfd registered alongside client fds lets
// the dispatcher's blocking EpollWait be woken from another goroutine (a
// newly accepted connection, a re-armed connection, or shutdown) without
// a timeout-based poll loop.
type poller struct {
	epfd   int
	wakeFd int

	mu   sync.Mutex
	byFd map[int32]*connState
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl add wake fd: %w", err)
	}
	return &poller{epfd: epfd, wakeFd: wakeFd, byFd: make(map[int32]*connState)}, nil
}

func connFd(conn *net.UnixConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// add arms cs for readability. Called both for newly accepted connections
// and for re-arming a connection the worker pool just finished with.
func (p *poller) add(cs *connState) error {
	if cs.rawFd < 0 {
		fd, err := connFd(cs.conn)
		if err != nil {
			return fmt.Errorf("extract fd: %w", err)
		}
		cs.rawFd = fd
	}

	p.mu.Lock()
	p.byFd[int32(cs.rawFd)] = cs
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(cs.rawFd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, cs.rawFd, &ev)
}

// remove un-arms cs, called once the acceptor has dequeued it onto the work
// queue (spec.md §4.5: "workers never re-arm").
func (p *poller) remove(cs *connState) {
	p.mu.Lock()
	delete(p.byFd, int32(cs.rawFd))
	p.mu.Unlock()
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, cs.rawFd, nil)
}

// wait blocks until at least one armed connection is readable, returning
// them all. A wake() call unblocks it with a zero-length result.
func (p *poller) wait() ([]*connState, error) {
	events := make([]unix.EpollEvent, 128)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}

		var ready []*connState
		woken := false
		for i := 0; i < n; i++ {
			fd := events[i].Fd
			if int(fd) == p.wakeFd {
				var buf [8]byte
				_, _ = unix.Read(p.wakeFd, buf[:])
				woken = true
				continue
			}
			p.mu.Lock()
			cs, ok := p.byFd[fd]
			p.mu.Unlock()
			if ok {
				ready = append(ready, cs)
			}
		}
		if len(ready) == 0 && woken {
			return nil, nil
		}
		if len(ready) == 0 {
			continue
		}
		return ready, nil
	}
}

func (p *poller) wake() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(p.wakeFd, buf[:])
}

func (p *poller) close() error {
	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
