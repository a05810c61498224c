// Package reactor implements the socket reactor: it owns a mux.Multiplexer,
// maintains the owned/borrowed socket maps, and dispatches readiness
// events to each Socket's Handler following the accept and non-accept
// algorithms described by the system this package models.
package reactor

import (
	"runtime"

	"github.com/owacoder/skate-reactor/logx"
	"github.com/owacoder/skate-reactor/mux"
)

// Listener marks a Handler whose socket is a listening socket: its
// descriptor becomes ready to READ when a connection can be accepted,
// and the reactor drives the accept algorithm instead of ReadyRead.
type Listener interface {
	Handler
	// IsListener is a marker method; it carries no behavior.
	IsListener()
}

// BaseListener embeds BaseHandler and implements the Listener marker,
// so a concrete listener handler only needs to override Create.
type BaseListener struct{ BaseHandler }

func (BaseListener) IsListener() {}

// Reactor dispatches multiplexer readiness events to registered
// sockets. It is not safe for concurrent use from multiple goroutines;
// Serve/Poll/Run/Cancel/MessageReceived are non-reentrant with respect
// to a single Reactor, matching its single-threaded cooperative model.
type Reactor struct {
	mx mux.Multiplexer

	owned    map[int]*Socket
	borrowed map[int]*Socket

	logger    logx.Logger
	errorHook func(error)

	cancelled bool
}

// New constructs a Reactor driven by mx.
func New(mx mux.Multiplexer, opts ...Option) *Reactor {
	o := resolveOptions(opts)
	return &Reactor{
		mx:        mx,
		owned:     make(map[int]*Socket),
		borrowed:  make(map[int]*Socket),
		logger:    o.logger,
		errorHook: o.errorHook,
	}
}

// Serve adds a user-owned socket to the borrowed map and requests
// WatchAll. Passing a nil socket is a programming error and panics.
func (r *Reactor) Serve(s *Socket) error {
	if s == nil {
		panic("reactor: Serve called with nil socket")
	}
	adj, err := r.mx.Watch(s.fd, mux.WatchAll)
	if err != nil {
		return err
	}
	if err := s.applyAdjustment(adj); err != nil {
		return err
	}
	r.borrowed[s.fd] = s
	return nil
}

// Unserve removes a borrowed socket without closing it, the inverse of
// Serve for a caller that still owns the descriptor's lifetime.
func (r *Reactor) Unserve(s *Socket) error {
	delete(r.borrowed, s.fd)
	return r.mx.UnwatchDead(s.fd)
}

// Cancel requests that Run stop after its current pump completes.
func (r *Reactor) Cancel() { r.cancelled = true }

// Owned returns the number of sockets the reactor has accepted and owns.
func (r *Reactor) Owned() int { return len(r.owned) }

// Borrowed returns the number of user-owned sockets currently served.
func (r *Reactor) Borrowed() int { return len(r.borrowed) }

// Run alternates Poll(Infinite) with a yield, exiting when Cancel has
// been called or the reactor holds no borrowed sockets.
func (r *Reactor) Run() error {
	r.cancelled = false
	for !r.cancelled && len(r.borrowed) > 0 {
		if err := r.Poll(mux.Infinite); err != nil {
			if isTimedOut(err) {
				continue
			}
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// Poll performs one multiplexer pump with the given timeout.
func (r *Reactor) Poll(timeout mux.Timeout) error {
	err := r.mx.Poll(timeout, r.dispatch)
	if err != nil && !isTimedOut(err) {
		r.reportReactorError(err)
	}
	return err
}

func isTimedOut(err error) bool {
	me, ok := err.(*mux.Error)
	return ok && me.Kind == mux.ErrTimedOutKind
}

func (r *Reactor) reportReactorError(err error) {
	r.logger.Log(logx.Entry{Level: logx.LevelError, Category: "reactor", Message: "reactor error", Err: err})
	if r.errorHook != nil {
		r.errorHook(err)
	}
	r.Cancel()
}

// dispatch is the mux.PollCallback the reactor registers with its
// multiplexer; it fans out to the accept algorithm or the non-accept
// dispatch algorithm depending on the descriptor's role.
func (r *Reactor) dispatch(ev mux.Event) {
	if s, ok := r.findListener(ev.FD); ok {
		r.runAcceptLoop(s)
		return
	}
	if s, ok := r.owned[ev.FD]; ok {
		r.dispatchNonAccept(s, ev.Mask)
		return
	}
	if s, ok := r.borrowed[ev.FD]; ok {
		r.dispatchNonAccept(s, ev.Mask)
		return
	}
}

func (r *Reactor) findListener(fd int) (*Socket, bool) {
	if s, ok := r.owned[fd]; ok {
		if _, isListener := s.handler.(Listener); isListener {
			return s, true
		}
	}
	if s, ok := r.borrowed[fd]; ok {
		if _, isListener := s.handler.(Listener); isListener {
			return s, true
		}
	}
	return nil, false
}

// runAcceptLoop implements the accept algorithm, spec §4.D.
func (r *Reactor) runAcceptLoop(listener *Socket) {
	for !listener.IsBlocking() {
		childFD, err := acceptRaw(listener.fd)
		if err != nil {
			if IsWouldBlock(err) {
				break
			}
			listener.handler.Error(listener, err)
			r.reportSocketError(listener, err)
			break
		}

		blocking := childInitialBlocking(listener.IsBlocking())
		handler := listener.handler.Create(listener, childFD, StateConnected, blocking)
		if handler == nil {
			_ = rawClose(childFD)
			continue
		}

		child := NewSocket(childFD, handler, StateConnected, blocking)
		adj, err := r.mx.Watch(childFD, mux.WatchAll)
		if err != nil {
			handler.Error(child, err)
			r.reportSocketError(child, err)
			_ = rawClose(childFD)
			continue
		}
		if err := child.applyAdjustment(adj); err != nil {
			handler.Error(child, err)
			r.reportSocketError(child, err)
			_ = rawClose(childFD)
			continue
		}

		child.owned = true
		r.owned[childFD] = child
		handler.ServerConnected(child, nil)
	}
}

func (r *Reactor) reportSocketError(s *Socket, err error) {
	r.logger.Log(logx.Entry{Level: logx.LevelError, Category: "reactor", Message: "socket error", FD: s.fd, Err: err})
	if r.errorHook != nil {
		r.errorHook(err)
	}
}

// teardownSocket unregisters s and closes its descriptor if the reactor
// hasn't already done so, used both by the graceful-hangup path and by a
// socket observed to transition to a terminal State mid-callback.
func (r *Reactor) teardownSocket(s *Socket, fd int) {
	s.handler.Disconnected(s, nil)
	_ = r.mx.UnwatchDead(fd)
	delete(r.owned, fd)
	delete(r.borrowed, fd)
	if s.state != StateDisconnected {
		_ = s.closeNow()
	}
}

// dispatchNonAccept implements the non-accept event dispatch algorithm,
// spec §4.D steps 1-8.
func (r *Reactor) dispatchNonAccept(s *Socket, m mux.WatchMask) {
	fd := s.fd // step 1: snapshot, the callback may legally close s
	s.didWrite = false // step 2

	stateBefore := s.state

	if m.Has(mux.READ) || s.pendingAsyncRead {
		s.handler.ReadyRead(s, nil)
	}
	if m.Has(mux.WRITE) && !s.state.isTerminal() {
		if ferr := s.flush(); ferr != nil {
			s.handler.Error(s, ferr)
			r.reportSocketError(s, ferr)
			s.state = StateErrored
		} else {
			s.handler.ReadyWrite(s, nil)
			if s.state == StateDisconnecting && !s.PendingOutput() {
				_ = s.closeNow()
			}
		}
	}

	disconnect := (m.Has(mux.HANGUP) && !m.Has(mux.READ) && !s.pendingAsyncRead) ||
		(s.state.isTerminal() && !stateBefore.isTerminal())

	if disconnect {
		r.teardownSocket(s, fd)
		return
	}

	if s.didWrite || s.pendingAsyncWrite {
		adj, err := r.mx.Modify(fd, mux.WatchAll|mux.WRITE)
		if err != nil {
			s.handler.Error(s, err)
			r.reportSocketError(s, err)
			s.state = StateErrored
			r.teardownSocket(s, fd)
			return
		}
		_ = s.applyAdjustment(adj)
		return
	}

	if m.Has(mux.WRITE) && !s.PendingOutput() && !s.pendingAsyncWrite {
		adj, err := r.mx.Modify(fd, mux.WatchAll)
		if err != nil {
			s.handler.Error(s, err)
			r.reportSocketError(s, err)
			s.state = StateErrored
			r.teardownSocket(s, fd)
			return
		}
		_ = s.applyAdjustment(adj)
	}
}
