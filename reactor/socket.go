package reactor

import "github.com/owacoder/skate-reactor/mux"

// State is the lifecycle stage of a Socket. Disconnected and Errored are
// both terminal; the non-accept dispatch algorithm treats a transition
// into either during a callback the same as an observed HANGUP.
type State int

const (
	// StateConnecting marks a socket created but not yet usable (rarely
	// needed by this reactor, since it never originates connections
	// itself; kept for handlers that model async connect()).
	StateConnecting State = iota
	// StateConnected is the steady state for an accepted or served socket.
	StateConnected
	// StateDisconnecting marks a socket whose disconnect() has been
	// requested but whose output buffer is still draining.
	StateDisconnecting
	// StateDisconnected is terminal.
	StateDisconnected
	// StateErrored is terminal: the reactor hit a persistent error acting
	// on this socket's behalf (e.g. a failed mux.Modify) outside of a
	// Read/Write call already reporting it through an error return.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// isTerminal reports whether s is a lifecycle end-state the dispatch
// algorithm tears down once observed.
func (s State) isTerminal() bool { return s == StateDisconnected || s == StateErrored }

// Handler implements the polymorphic hooks a Socket dispatches to, per
// spec.md §4.C. A concrete handler almost always embeds BaseHandler and
// a *Socket so it can read/write from within its own callbacks.
type Handler interface {
	// ReadyRead is called when s is readable, or when s has a pending
	// asynchronous read outstanding. err is non-nil only for a
	// persistent failure observed while determining readiness; it is
	// never ErrWouldBlock.
	ReadyRead(s *Socket, err error)
	// ReadyWrite is called when s is writable.
	ReadyWrite(s *Socket, err error)
	// Disconnected is called once, after the peer hangs up or a
	// terminal state transition is observed, before s is unregistered.
	Disconnected(s *Socket, err error)
	// Error is called for any non-transient error not already routed to
	// a more specific hook.
	Error(s *Socket, err error)
	// Create manufactures a handler for a freshly accepted connection on
	// a listening socket. Returning a nil Handler vetoes admission: the
	// child is closed immediately and never registered or reported to
	// ServerConnected. The listening socket is passed so the factory can
	// share state (e.g. a connection counter) with its listener.
	Create(listener *Socket, fd int, initial State, blocking bool) Handler
	// ServerConnected is called once, immediately after the reactor
	// registers a newly accepted socket.
	ServerConnected(s *Socket, err error)
}

// BaseHandler gives a concrete handler every hook as a no-op, so it only
// needs to override the ones it cares about. Create returns nil: a
// listener built on BaseHandler alone accepts no connections until it
// supplies its own Create.
type BaseHandler struct{}

func (BaseHandler) ReadyRead(*Socket, error)                 {}
func (BaseHandler) ReadyWrite(*Socket, error)                {}
func (BaseHandler) Disconnected(*Socket, error)              {}
func (BaseHandler) Error(*Socket, error)                     {}
func (BaseHandler) Create(*Socket, int, State, bool) Handler { return nil }
func (BaseHandler) ServerConnected(*Socket, error)           {}

// Socket wraps one OS descriptor and the output buffer the reactor
// drains on its behalf. Its read/write methods never block: would-block
// is reported as (0, ErrWouldBlock), not treated as an error by callers
// that check errors.Is(err, ErrWouldBlock).
type Socket struct {
	fd       int
	handler  Handler
	state    State
	blocking bool

	outBuf   []byte
	didWrite bool

	// pendingAsyncRead lets a handler tell the reactor to keep invoking
	// ReadyRead even without a fresh READ event, e.g. while draining a
	// multi-part body it chose to pause mid-callback.
	pendingAsyncRead bool

	// pendingAsyncWrite lets a handler tell the reactor it still has more
	// to write even though the output buffer just drained, e.g. the next
	// chunk of a streamed chunked-encoded body not yet pulled in.
	pendingAsyncWrite bool

	owned bool // true if the reactor owns and will close this socket
}

// NewSocket wraps fd with handler. initial is almost always
// StateConnected; blocking reports the descriptor's current mode.
func NewSocket(fd int, handler Handler, initial State, blocking bool) *Socket {
	return &Socket{fd: fd, handler: handler, state: initial, blocking: blocking}
}

// FD returns the underlying descriptor.
func (s *Socket) FD() int { return s.fd }

// State returns the socket's current lifecycle stage.
func (s *Socket) State() State { return s.state }

// Handler returns the socket's handler.
func (s *Socket) Handler() Handler { return s.handler }

// IsBlocking reports whether the descriptor is in blocking mode.
func (s *Socket) IsBlocking() bool { return s.blocking }

// SetBlocking flips the descriptor's blocking mode via the platform's
// raw I/O primitive.
func (s *Socket) SetBlocking(blocking bool) error {
	if s.blocking == blocking {
		return nil
	}
	if err := setNonblock(s.fd, !blocking); err != nil {
		return &Error{Kind: OSKind, FD: s.fd, Op: "set_blocking", Err: err}
	}
	s.blocking = blocking
	return nil
}

func (s *Socket) applyAdjustment(a mux.BlockingAdjustment) error {
	switch a {
	case mux.MustBeNonBlocking:
		return s.SetBlocking(false)
	case mux.MustBeBlocking:
		return s.SetBlocking(true)
	default:
		return nil
	}
}

// Read attempts a single non-blocking read of up to len(buf) bytes.
// Would-block is reported as (0, ErrWouldBlock); peer EOF as (0, io.EOF)
// would be indistinguishable from a zero-length read so callers should
// treat n==0, err==nil as EOF per the raw read primitive's contract.
func (s *Socket) Read(buf []byte) (int, error) {
	n, err := rawRead(s.fd, buf)
	if err != nil {
		return 0, classifyReadError(s.fd, err)
	}
	return n, nil
}

// ReadAll appends all currently-available bytes to out until a read
// would block, returning the (possibly grown) slice.
func (s *Socket) ReadAll(out []byte) ([]byte, error) {
	var tmp [4096]byte
	for {
		n, err := s.Read(tmp[:])
		if n > 0 {
			out = append(out, tmp[:n]...)
		}
		if err != nil {
			if IsWouldBlock(err) {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// Write appends bytes to the output buffer and attempts an immediate
// flush. Any unflushed remainder stays buffered and sets did_write so
// the reactor knows to watch for writability; the reactor itself calls
// flush again on each subsequent WRITE readiness until the buffer
// empties.
func (s *Socket) Write(bytes []byte) error {
	s.outBuf = append(s.outBuf, bytes...)
	return s.flush()
}

func (s *Socket) flush() error {
	for len(s.outBuf) > 0 {
		n, err := rawWrite(s.fd, s.outBuf)
		if n > 0 {
			s.outBuf = s.outBuf[n:]
		}
		if err != nil {
			cerr := classifyWriteError(s.fd, err)
			if IsWouldBlock(cerr) {
				s.didWrite = true
				return nil
			}
			return cerr
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// PendingOutput reports whether bytes remain queued for write.
func (s *Socket) PendingOutput() bool { return len(s.outBuf) > 0 }

// RequestAsyncRead marks s so the reactor keeps invoking ReadyRead on
// subsequent dispatches even without a fresh READ event.
func (s *Socket) RequestAsyncRead(pending bool) { s.pendingAsyncRead = pending }

// RequestAsyncWrite marks s so the reactor keeps watching for
// writability even though the output buffer has fully drained.
func (s *Socket) RequestAsyncWrite(pending bool) { s.pendingAsyncWrite = pending }

// Disconnect initiates a graceful close: if output is still pending it
// moves to StateDisconnecting and lets the reactor finish draining;
// otherwise it closes the descriptor immediately.
func (s *Socket) Disconnect() error {
	if s.PendingOutput() {
		s.state = StateDisconnecting
		return nil
	}
	return s.closeNow()
}

func (s *Socket) closeNow() error {
	s.state = StateDisconnected
	return rawClose(s.fd)
}

// IsWouldBlock reports whether err is the transient would-block
// classification, which a Handler's ReadyRead must never observe.
func IsWouldBlock(err error) bool {
	re, ok := err.(*Error)
	return ok && re.Kind == WouldBlockKind
}
