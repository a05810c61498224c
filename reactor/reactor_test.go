package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/owacoder/skate-reactor/mux"
)

// fakeMux is an in-memory mux.Multiplexer used to drive the reactor's
// dispatch algorithms without touching real descriptors.
type fakeMux struct {
	masks    map[int]mux.WatchMask
	watchErr error
	events   []mux.Event
}

func newFakeMux() *fakeMux { return &fakeMux{masks: make(map[int]mux.WatchMask)} }

func (f *fakeMux) Watching(fd int) mux.WatchMask { return f.masks[fd] }

func (f *fakeMux) Watch(fd int, m mux.WatchMask) (mux.BlockingAdjustment, error) {
	if f.watchErr != nil {
		return mux.Unchanged, f.watchErr
	}
	f.masks[fd] = m
	return mux.Unchanged, nil
}

func (f *fakeMux) Modify(fd int, m mux.WatchMask) (mux.BlockingAdjustment, error) {
	f.masks[fd] = m
	return mux.Unchanged, nil
}

func (f *fakeMux) Unwatch(fd int) error     { delete(f.masks, fd); return nil }
func (f *fakeMux) UnwatchDead(fd int) error { delete(f.masks, fd); return nil }
func (f *fakeMux) Clear()                   { f.masks = make(map[int]mux.WatchMask) }

func (f *fakeMux) Poll(mux.Timeout, mux.PollCallback) error { return nil }
func (f *fakeMux) Close() error                             { return nil }

func (f *fakeMux) deliver(r *Reactor, ev mux.Event) { r.dispatch(ev) }

// recordingHandler counts hook invocations and lets a test script its
// behavior via closures.
type recordingHandler struct {
	BaseHandler
	reads, writes, disconnects, errors int
	onReadyRead                        func(s *Socket)
	onReadyWrite                       func(s *Socket)
	createFn                           func(listener *Socket, fd int, st State, blocking bool) Handler
}

func (h *recordingHandler) ReadyRead(s *Socket, err error) {
	h.reads++
	if h.onReadyRead != nil {
		h.onReadyRead(s)
	}
}

func (h *recordingHandler) ReadyWrite(s *Socket, err error) {
	h.writes++
	if h.onReadyWrite != nil {
		h.onReadyWrite(s)
	}
}

func (h *recordingHandler) Disconnected(s *Socket, err error) { h.disconnects++ }
func (h *recordingHandler) Error(s *Socket, err error)        { h.errors++ }

func (h *recordingHandler) Create(listener *Socket, fd int, st State, blocking bool) Handler {
	if h.createFn != nil {
		return h.createFn(listener, fd, st, blocking)
	}
	return nil
}

func TestServeAddsToBorrowedAndWatchesAll(t *testing.T) {
	m := newFakeMux()
	r := New(m)
	h := &recordingHandler{}
	s := NewSocket(11, h, StateConnected, false)

	require.NoError(t, r.Serve(s))
	require.Equal(t, 1, r.Borrowed())
	require.Equal(t, mux.WatchAll, m.Watching(11))
}

func TestServeNilSocketPanics(t *testing.T) {
	r := New(newFakeMux())
	require.Panics(t, func() { _ = r.Serve(nil) })
}

func TestDispatchReadBeforeWrite(t *testing.T) {
	m := newFakeMux()
	r := New(m)
	var order []string
	h := &recordingHandler{
		onReadyRead:  func(*Socket) { order = append(order, "read") },
		onReadyWrite: func(*Socket) { order = append(order, "write") },
	}
	s := NewSocket(5, h, StateConnected, false)
	require.NoError(t, r.Serve(s))

	r.dispatch(mux.Event{FD: 5, Mask: mux.READ | mux.WRITE})

	require.Equal(t, []string{"read", "write"}, order)
}

func TestDispatchHangupWithoutReadTearsDownSocket(t *testing.T) {
	m := newFakeMux()
	r := New(m)
	h := &recordingHandler{}
	s := NewSocket(7, h, StateConnected, false)
	require.NoError(t, r.Serve(s))

	r.dispatch(mux.Event{FD: 7, Mask: mux.HANGUP})

	require.Equal(t, 1, h.disconnects)
	require.Equal(t, 0, r.Borrowed())
	_, watched := m.masks[7]
	require.False(t, watched)
}

func TestDispatchWriteWithNothingQueuedDropsWriteInterest(t *testing.T) {
	m := newFakeMux()
	r := New(m)
	h := &recordingHandler{}
	s := NewSocket(9, h, StateConnected, false)
	require.NoError(t, r.Serve(s))

	r.dispatch(mux.Event{FD: 9, Mask: mux.WRITE})

	require.Equal(t, mux.WatchAll, m.Watching(9))
}

func TestAcceptLoopOnNonSocketDescriptorReportsErrorAndStops(t *testing.T) {
	m := newFakeMux()
	r := New(m)

	listenerHandler := &recordingHandler{
		createFn: func(listener *Socket, fd int, st State, blocking bool) Handler {
			t.Fatal("Create must not be reached when accept itself fails")
			return nil
		},
	}
	// fd 1 (stdout) is not a socket: acceptRaw on it fails with a real OS
	// error rather than would-block, exercising the loop's error branch.
	listener := NewSocket(1, listenerHandler, StateConnected, false)

	r.runAcceptLoop(listener)

	require.Equal(t, 1, listenerHandler.errors)
	require.Equal(t, 0, r.Owned())
}

func TestFindListenerDistinguishesListenerHandlers(t *testing.T) {
	m := newFakeMux()
	r := New(m)

	plain := &recordingHandler{}
	plainSocket := NewSocket(2, plain, StateConnected, false)
	r.owned[2] = plainSocket

	listenerHandler := struct {
		BaseListener
	}{}
	listenerSocket := NewSocket(3, listenerHandler, StateConnected, false)
	r.owned[3] = listenerSocket

	_, isListener := r.findListener(2)
	require.False(t, isListener)

	_, isListener = r.findListener(3)
	require.True(t, isListener)
}

func TestErrorKindString(t *testing.T) {
	require.Equal(t, "bad-message", BadMessageKind.String())
	require.Equal(t, "would-block", WouldBlockKind.String())
}

func TestIsWouldBlock(t *testing.T) {
	require.True(t, IsWouldBlock(&Error{Kind: WouldBlockKind}))
	require.False(t, IsWouldBlock(&Error{Kind: OSKind}))
}
