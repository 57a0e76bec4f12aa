package server

import (
	"time"

	"github.com/marmos91/cachefsd/internal/logger"
	"github.com/marmos91/cachefsd/internal/wire"
)

// workerLoop dequeues one ready connection at a time and serves exactly one
// request from it (spec.md §4.5). On shutdown, a worker finishes draining
// whatever is already queued before exiting.
func (s *Server) workerLoop() {
	defer s.wg.Done()
	for {
		select {
		case cs := <-s.workQueue:
			s.serveOneRequest(cs)
		case <-s.shutdownCh:
			s.drainQueue()
			return
		}
	}
}

func (s *Server) drainQueue() {
	for {
		select {
		case cs := <-s.workQueue:
			s.serveOneRequest(cs)
		default:
			return
		}
	}
}

// serveOneRequest reads exactly one Request, dispatches it, and writes its
// response(s). A nil response slice means the request parked on a
// contended lock (spec.md §4.5's suspension model): this worker returns to
// the pool without re-arming cs, and whichever worker later processes the
// unlock/close that grants the lock calls deliver, which writes the
// deferred response and re-arms cs itself.
func (s *Server) serveOneRequest(cs *connState) {
	start := time.Now()

	req, err := wire.ReadRequest(cs.reader)
	if err != nil {
		logger.Debug("framing error, closing connection", logger.SessionID(cs.sessionID), logger.Err(err))
		s.dropConn(cs)
		return
	}
	if cs.session.PID == 0 && req.PID != 0 {
		cs.session.PID = req.PID
	}

	deliver := func(resp *wire.Response) {
		if !s.writeResponse(cs, resp) {
			return
		}
		s.recordOp(req.Cmd.String(), resp.Pathname, len(req.Content), len(resp.Content), resp.Code, time.Since(start))
		s.rearm(cs)
	}

	responses := s.handler.Handle(cs.sessionID, cs.session, req, deliver)
	if responses == nil {
		return
	}

	var bytesOut int
	var code wire.Code
	for _, resp := range responses {
		if !s.writeResponse(cs, resp) {
			return
		}
		bytesOut += len(resp.Content)
		code = resp.Code
	}
	s.recordOp(req.Cmd.String(), req.Pathname, len(req.Content), bytesOut, code, time.Since(start))
	s.rearm(cs)
}

// writeResponse writes resp under cs's per-connection write guard (spec.md
// §5: responses on one connection must stay contiguous even when a
// deferred delivery interleaves from another worker).
func (s *Server) writeResponse(cs *connState, resp *wire.Response) bool {
	cs.writeMu.Lock()
	err := wire.WriteResponse(cs.conn, resp)
	cs.writeMu.Unlock()
	if err != nil {
		logger.Debug("write response failed", logger.SessionID(cs.sessionID), logger.Err(err))
		s.dropConn(cs)
		return false
	}
	return true
}

func (s *Server) recordOp(op, pathname string, bytesIn, bytesOut int, code wire.Code, dur time.Duration) {
	s.mu.Lock()
	s.bytesRead += uint64(bytesIn)
	s.bytesWritten += uint64(bytesOut)
	s.perOpCounts[op]++
	s.mu.Unlock()

	logger.Info("request",
		logger.Op(op),
		logger.Pathname(pathname),
		logger.BytesIn(bytesIn),
		logger.BytesOut(bytesOut),
		logger.Code(int(code)),
		logger.DurationUs(dur.Microseconds()),
	)

	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRequest(op, code.String(), float64(dur.Microseconds()))
	st := s.store.Stats()
	s.metrics.ObserveStoreStats(st.FilesInUse, st.BytesInUse, st.PeakFiles, st.PeakBytes, st.EvictionsTotal)
}
