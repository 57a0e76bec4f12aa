// Package handler maps one decoded wire.Request to store/session mutations
// and the wire.Response(s) it produces, per spec.md §4.4 ("Request
// handler: stateless functions mapping one decoded Request to mutations of
// the store and one or more Responses"). A handler call either returns its
// responses immediately or, for a contended lock, returns zero responses
// and arranges for Deliver to be invoked later by whichever other request
// releases the entry.
package handler

import (
	"github.com/marmos91/cachefsd/internal/session"
	"github.com/marmos91/cachefsd/internal/store"
	"github.com/marmos91/cachefsd/internal/wire"
)

// Deliver sends one deferred response to a parked connection. The server
// package supplies the concrete implementation (a guarded write on the
// owning fd); handler only needs the shape.
type Deliver func(resp *wire.Response)

// Handler dispatches requests against one store and session registry.
type Handler struct {
	store *store.Store
	reg   *session.Registry
}

// New builds a request handler over store st and session registry reg.
func New(st *store.Store, reg *session.Registry) *Handler {
	return &Handler{store: st, reg: reg}
}

// evictedResponses converts staged eviction payloads into the EVICTED
// responses that must precede the admitting operation's terminal response
// (spec.md §4.3 step 4).
func evictedResponses(evicted []store.EvictedFile) []*wire.Response {
	out := make([]*wire.Response, 0, len(evicted))
	for _, v := range evicted {
		out = append(out, &wire.Response{
			Pathname:    v.Pathname,
			Content:     v.Content,
			ContentSize: uint64(len(v.Content)),
			Code:        wire.CodeEvicted,
		})
	}
	return out
}

func terminal(pathname string, code wire.Code) *wire.Response {
	return &wire.Response{Pathname: pathname, Code: code}
}

// Handle dispatches req against the session identified by sessionID and
// returns the responses to send, in order. A nil slice means
// the request was parked: deliver will be called later, exactly once, on a
// different goroutine.
func (h *Handler) Handle(sessionID string, sess *session.Session, req *wire.Request, deliver Deliver) []*wire.Response {
	switch req.Cmd {
	case wire.CmdOpen:
		return h.handleOpen(sessionID, sess, req, deliver)
	case wire.CmdClose:
		return h.handleClose(sessionID, sess, req)
	case wire.CmdRead:
		return h.handleRead(sessionID, sess, req)
	case wire.CmdReadN:
		return h.handleReadN(sessionID, req)
	case wire.CmdWrite:
		return h.handleWrite(sessionID, sess, req)
	case wire.CmdAppend:
		return h.handleAppend(sessionID, sess, req)
	case wire.CmdLock:
		return h.handleLock(sessionID, sess, req, deliver)
	case wire.CmdUnlock:
		return h.handleUnlock(sessionID, sess, req)
	case wire.CmdRemove:
		return h.handleRemove(sessionID, sess, req)
	case wire.CmdStat:
		return h.handleStat(sess, req)
	default:
		return []*wire.Response{terminal(req.Pathname, wire.CodeInternal)}
	}
}

func (h *Handler) handleOpen(sessionID string, sess *session.Session, req *wire.Request, deliver Deliver) []*wire.Response {
	pathname := req.Pathname
	flags := req.Flags
	if flags < 0 {
		flags = 0 // -1 on the wire means "no flags"
	}
	onGrant := func(code wire.Code) {
		if code == wire.CodeOK {
			sess.MarkOpened(pathname)
			if flags&wire.OLock != 0 {
				sess.MarkLocked(pathname)
				sess.ClearWriteToken(pathname)
			}
		}
		sess.SetWaiting("")
		deliver(terminal(pathname, code))
	}

	res := h.store.Open(sessionID, pathname, flags, onGrant)
	if res.Deferred {
		sess.SetWaiting(pathname)
		return nil
	}

	if res.Code == wire.CodeOK {
		sess.MarkOpened(pathname)
		if flags&wire.OCreate != 0 && flags&wire.OLock != 0 {
			sess.MarkLocked(pathname)
			sess.SetWriteToken(pathname)
		} else if flags&wire.OLock != 0 {
			sess.MarkLocked(pathname)
			sess.ClearWriteToken(pathname)
		} else {
			sess.ClearWriteToken(pathname)
		}
	}
	return []*wire.Response{terminal(pathname, res.Code)}
}

func (h *Handler) handleClose(sessionID string, sess *session.Session, req *wire.Request) []*wire.Response {
	res := h.store.Close(sessionID, req.Pathname)
	if res.Code == wire.CodeOK {
		sess.MarkClosed(req.Pathname)
	}
	return []*wire.Response{terminal(req.Pathname, res.Code)}
}

func (h *Handler) handleRead(sessionID string, sess *session.Session, req *wire.Request) []*wire.Response {
	res := h.store.Read(sessionID, req.Pathname)
	sess.ClearWriteToken(req.Pathname)
	if res.Code != wire.CodeOK {
		return []*wire.Response{terminal(req.Pathname, res.Code)}
	}
	return []*wire.Response{{
		Pathname:    req.Pathname,
		Content:     res.Content,
		ContentSize: res.ContentSize,
		Code:        wire.CodeOK,
	}}
}

func (h *Handler) handleReadN(sessionID string, req *wire.Request) []*wire.Response {
	entries := h.store.ReadN(sessionID, int32(req.Size))
	out := make([]*wire.Response, 0, len(entries)+1)
	for _, e := range entries {
		out = append(out, &wire.Response{
			Pathname:    e.Pathname,
			Content:     e.Content,
			ContentSize: uint64(len(e.Content)),
			Code:        wire.CodeOK,
		})
	}
	out = append(out, &wire.Response{Code: wire.CodeEnd, ContentSize: uint64(len(entries))})
	return out
}

func (h *Handler) handleWrite(sessionID string, sess *session.Session, req *wire.Request) []*wire.Response {
	tokenOK := sess.ConsumeWriteToken(req.Pathname)
	res := h.store.Write(sessionID, req.Pathname, req.Content, tokenOK)
	out := evictedResponses(res.Evicted)
	return append(out, terminal(req.Pathname, res.Code))
}

func (h *Handler) handleAppend(sessionID string, sess *session.Session, req *wire.Request) []*wire.Response {
	sess.ClearWriteToken(req.Pathname)
	res := h.store.Append(sessionID, req.Pathname, req.Content)
	out := evictedResponses(res.Evicted)
	return append(out, terminal(req.Pathname, res.Code))
}

func (h *Handler) handleLock(sessionID string, sess *session.Session, req *wire.Request, deliver Deliver) []*wire.Response {
	pathname := req.Pathname
	sess.ClearWriteToken(pathname)
	onGrant := func(code wire.Code) {
		if code == wire.CodeOK {
			sess.MarkLocked(pathname)
		}
		sess.SetWaiting("")
		deliver(terminal(pathname, code))
	}

	res := h.store.Lock(sessionID, pathname, onGrant)
	if res.Deferred {
		sess.SetWaiting(pathname)
		return nil
	}
	if res.Code == wire.CodeOK {
		sess.MarkLocked(pathname)
	}
	return []*wire.Response{terminal(pathname, res.Code)}
}

func (h *Handler) handleUnlock(sessionID string, sess *session.Session, req *wire.Request) []*wire.Response {
	res := h.store.Unlock(sessionID, req.Pathname)
	sess.ClearWriteToken(req.Pathname)
	if res.Code == wire.CodeOK {
		sess.MarkUnlocked(req.Pathname)
	}
	return []*wire.Response{terminal(req.Pathname, res.Code)}
}

func (h *Handler) handleRemove(sessionID string, sess *session.Session, req *wire.Request) []*wire.Response {
	res := h.store.Remove(sessionID, req.Pathname)
	if res.Code == wire.CodeOK {
		sess.MarkClosed(req.Pathname)
	}
	return []*wire.Response{terminal(req.Pathname, res.Code)}
}

func (h *Handler) handleStat(sess *session.Session, req *wire.Request) []*wire.Response {
	res := h.store.Stat(req.Pathname)
	sess.ClearWriteToken(req.Pathname)
	return []*wire.Response{{
		Pathname:    req.Pathname,
		ContentSize: res.ContentSize,
		Code:        res.Code,
	}}
}
