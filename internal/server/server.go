// Package server implements cachefsd's acceptor and worker pool: one
// goroutine accepts on the listening socket, a second is the only one that
// waits on the readiness primitive and arms connections in it (spec.md
// §4.5), a fixed pool of workers read one request per turn, dispatch it
// through internal/handler, write the response(s), and hand the connection
// back for re-arming. A worker that would otherwise block on a contended
// lock instead parks the request and returns to the pool immediately.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/marmos91/cachefsd/internal/config"
	"github.com/marmos91/cachefsd/internal/handler"
	"github.com/marmos91/cachefsd/internal/logger"
	"github.com/marmos91/cachefsd/internal/metrics"
	"github.com/marmos91/cachefsd/internal/session"
	"github.com/marmos91/cachefsd/internal/store"
)

// Server binds a local stream socket and serves cachefsd's wire protocol
// against a shared store, session registry, and request handler.
type Server struct {
	socketPath string
	workers    int

	store   *store.Store
	reg     *session.Registry
	handler *handler.Handler
	metrics *metrics.Metrics

	listener *net.UnixListener
	poller   *poller

	workQueue chan *connState
	returnCh  chan *connState
	newConnCh chan *connState

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup

	mu           sync.Mutex
	conns        map[*connState]struct{}
	bytesRead    uint64
	bytesWritten uint64
	perOpCounts  map[string]uint64
}

// New builds a server. st, reg, and h must already be wired together
// (internal/handler.New(st, reg)); m may be nil when metrics are disabled.
func New(cfg *config.Config, st *store.Store, reg *session.Registry, h *handler.Handler, m *metrics.Metrics) *Server {
	queueDepth := cfg.Workers * 4
	if queueDepth < 16 {
		queueDepth = 16
	}
	return &Server{
		socketPath:  cfg.SocketPath,
		workers:     cfg.Workers,
		store:       st,
		reg:         reg,
		handler:     h,
		metrics:     m,
		workQueue:   make(chan *connState, queueDepth),
		returnCh:    make(chan *connState, queueDepth),
		newConnCh:   make(chan *connState, 64),
		shutdownCh:  make(chan struct{}),
		conns:       make(map[*connState]struct{}),
		perOpCounts: make(map[string]uint64),
	}
}

// Serve binds the socket, starts the acceptor/dispatcher/worker goroutines,
// and blocks until SIGINT/SIGQUIT or ctx cancellation ends the run. A bind
// failure is returned at once. An accept error is logged and stops the
// acceptor only: Serve keeps serving the connections it already has and does
// not return until a signal or ctx cancellation. SIGHUP dumps statistics and
// continues (spec.md §5).
func (s *Server) Serve(ctx context.Context) error {
	if err := removeStaleSocket(s.socketPath); err != nil {
		return err
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("resolve socket path %q: %w", s.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	defer removeStaleSocket(s.socketPath) //nolint:errcheck

	p, err := newPoller()
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("init readiness primitive: %w", err)
	}
	s.poller = p

	logger.Info("cachefsd listening", "socket_path", s.socketPath, "workers", s.workers)

	s.wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go s.workerLoop()
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.wg.Add(1)
	go s.dispatchLoop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				s.dumpStats("SIGHUP")
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			s.shutdown()
			s.wg.Wait()
			s.dumpStats("shutdown")
			return nil
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			s.shutdown()
			s.wg.Wait()
			s.dumpStats("shutdown")
			return nil
		}
	}
}

func removeStaleSocket(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket %q: %w", path, err)
	}
	return nil
}

// acceptLoop accepts connections and hands them to dispatchLoop. Kept
// separate from dispatchLoop so that a slow Accept never delays arming
// already-connected clients.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
				logger.Warn("accept error", logger.Err(err))
				return
			}
		}

		sessionID := uuid.NewString()
		sess := session.New(sessionID, 0)
		s.reg.Add(sess)

		cs := newConnState(conn, sessionID, sess)

		s.mu.Lock()
		s.conns[cs] = struct{}{}
		s.mu.Unlock()
		s.updateClientGauge()

		select {
		case s.newConnCh <- cs:
			s.poller.wake()
		case <-s.shutdownCh:
			_ = conn.Close()
			return
		}
	}
}

// dispatchLoop is the single goroutine that waits on the readiness primitive
// and arms connections in it (spec.md §4.5). Other goroutines only wake it,
// or remove a connection they are dropping.
func (s *Server) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdownCh:
			_ = s.poller.close()
			return
		default:
		}

		s.drainArmRequests()

		ready, err := s.poller.wait()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
				logger.Error("readiness wait error", logger.Err(err))
				continue
			}
		}
		for _, cs := range ready {
			s.poller.remove(cs)
			select {
			case s.workQueue <- cs:
			case <-s.shutdownCh:
				return
			}
		}
	}
}

// drainArmRequests arms every pending new/returned connection before the
// next blocking wait(), so a burst of accepts or re-arms doesn't each pay a
// separate wake round-trip.
func (s *Server) drainArmRequests() {
	for {
		select {
		case cs := <-s.newConnCh:
			s.arm(cs)
		case cs := <-s.returnCh:
			s.arm(cs)
		default:
			return
		}
	}
}

func (s *Server) arm(cs *connState) {
	if err := s.poller.add(cs); err != nil {
		logger.Warn("arm connection failed", logger.SessionID(cs.sessionID), logger.Err(err))
		s.dropConn(cs)
	}
}

// rearm hands cs back to the dispatcher once a worker has finished one
// request on it, per spec.md §4.5 ("push the fd onto a return channel back
// to the acceptor so the acceptor re-arms it").
func (s *Server) rearm(cs *connState) {
	select {
	case s.returnCh <- cs:
		s.poller.wake()
	case <-s.shutdownCh:
	}
}

func (s *Server) dropConn(cs *connState) {
	s.mu.Lock()
	_, tracked := s.conns[cs]
	delete(s.conns, cs)
	s.mu.Unlock()
	if !tracked {
		return
	}

	s.poller.remove(cs)
	_ = cs.conn.Close()
	s.reg.Teardown(cs.sessionID, s.store)
	s.updateClientGauge()
}

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		_ = s.listener.Close()
		if s.poller != nil {
			s.poller.wake()
		}

		s.mu.Lock()
		conns := make([]*connState, 0, len(s.conns))
		for cs := range s.conns {
			conns = append(conns, cs)
		}
		s.mu.Unlock()
		for _, cs := range conns {
			s.dropConn(cs)
		}
	})
}

func (s *Server) updateClientGauge() {
	if s.metrics == nil {
		return
	}
	s.mu.Lock()
	count := len(s.conns)
	s.mu.Unlock()
	s.metrics.SetConnectedClients(count, s.reg.PeakConcurrentClients())
}

// dumpStats logs the statistics the SIGHUP handler and shutdown path both
// need (spec.md §6: "startup config dump and shutdown summary").
func (s *Server) dumpStats(reason string) {
	st := s.store.Stats()

	s.mu.Lock()
	bytesRead := s.bytesRead
	bytesWritten := s.bytesWritten
	perOp := make(map[string]uint64, len(s.perOpCounts))
	for op, n := range s.perOpCounts {
		perOp[op] = n
	}
	s.mu.Unlock()

	logger.Info("cachefsd statistics",
		"reason", reason,
		"peak_files", st.PeakFiles,
		"peak_bytes", st.PeakBytes,
		"evictions_total", st.EvictionsTotal,
		"bytes_read", bytesRead,
		"bytes_written", bytesWritten,
		"per_op_counts", perOp,
		"max_simultaneous_clients", s.reg.PeakConcurrentClients(),
	)
}
