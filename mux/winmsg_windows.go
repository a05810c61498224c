//go:build windows

package mux

import (
	"sync"

	"golang.org/x/sys/windows"

	"github.com/owacoder/skate-reactor/logx"
)

var (
	ws2_32             = windows.NewLazySystemDLL("ws2_32.dll")
	procWSAAsyncSelect = ws2_32.NewProc("WSAAsyncSelect")
)

const (
	fdRead    = 0x01
	fdWrite   = 0x02
	fdOOB     = 0x04
	fdClose   = 0x20
)

// NotificationTarget identifies the window and message id a
// MessageMultiplexer posts readiness notifications to, per spec.md §4.A
// "Message-driven back-end".
type NotificationTarget struct {
	Handle  windows.Handle
	Message uint32
}

// MessageMultiplexer is the Windows asynchronous-message-style back-end.
// Unlike every other back-end, it cannot be polled: registering a
// descriptor asks the OS to post window messages to a NotificationTarget
// whenever the descriptor's state changes, and the reactor's
// MessageReceived method decodes those messages instead of calling Poll.
type MessageMultiplexer struct {
	mu     sync.Mutex
	logger logx.Logger
	target NotificationTarget
	masks  map[int]WatchMask
}

// NewMessageDriven constructs a MessageMultiplexer that will post
// notifications to target.
func NewMessageDriven(target NotificationTarget, opts ...Option) *MessageMultiplexer {
	o := resolveOptions(opts)
	return &MessageMultiplexer{logger: o.logger, target: target, masks: make(map[int]WatchMask)}
}

func watchToAsyncSelectMask(mask WatchMask) uint32 {
	var m uint32
	if mask&READ != 0 {
		m |= fdRead | fdClose
	}
	if mask&WRITE != 0 {
		m |= fdWrite
	}
	if mask&EXCEPT != 0 {
		m |= fdOOB
	}
	return m
}

func (p *MessageMultiplexer) asyncSelect(fd int, mask WatchMask) error {
	r1, _, err := procWSAAsyncSelect.Call(
		uintptr(fd),
		uintptr(p.target.Handle),
		uintptr(p.target.Message),
		uintptr(watchToAsyncSelectMask(mask)),
	)
	if r1 != 0 {
		return &Error{Kind: ErrOSKind, Op: "wsaasyncselect", FD: fd, Err: err}
	}
	return nil
}

func (p *MessageMultiplexer) Watching(fd int) WatchMask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.masks[fd]
}

func (p *MessageMultiplexer) Watch(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "watch", FD: fd}
	}
	if err := p.asyncSelect(fd, mask); err != nil {
		return Unchanged, err
	}
	p.mu.Lock()
	p.masks[fd] = mask
	p.mu.Unlock()
	// WSAAsyncSelect implicitly puts the socket into non-blocking mode.
	return MustBeNonBlocking, nil
}

func (p *MessageMultiplexer) Modify(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "modify", FD: fd}
	}
	p.mu.Lock()
	_, ok := p.masks[fd]
	p.mu.Unlock()
	if !ok {
		return Unchanged, &Error{Kind: ErrBadDescriptorKind, Op: "modify", FD: fd}
	}
	return p.Watch(fd, mask)
}

func (p *MessageMultiplexer) Unwatch(fd int) error {
	if err := p.asyncSelect(fd, 0); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.masks, fd)
	p.mu.Unlock()
	return nil
}

func (p *MessageMultiplexer) UnwatchDead(fd int) error {
	p.mu.Lock()
	delete(p.masks, fd)
	p.mu.Unlock()
	return nil
}

func (p *MessageMultiplexer) Clear() {
	p.mu.Lock()
	p.masks = make(map[int]WatchMask)
	p.mu.Unlock()
}

// Poll always fails: a message-driven multiplexer cannot be polled, per
// spec.md §4.A. The reactor built on this back-end must instead call
// DecodeMessage from its host's window procedure.
func (p *MessageMultiplexer) Poll(Timeout, PollCallback) error {
	return &Error{Kind: ErrUnsupportedKind, Op: "poll"}
}

func (p *MessageMultiplexer) Close() error {
	p.Clear()
	return nil
}

// DecodeMessage decodes a window message posted by WSAAsyncSelect into a
// descriptor and event mask, per spec.md §4.D "Message-driven back-end
// flow". wParam is the socket; lParam packs the event bits in the low
// word and the error code in the high word.
func DecodeMessage(wParam, lParam uintptr) (fd int, mask WatchMask, errCode int) {
	lp := uint32(lParam)
	events := lp & 0xffff
	errCode = int(int16(lp >> 16))

	if events&fdRead != 0 {
		mask |= READ
	}
	if events&fdWrite != 0 {
		mask |= WRITE
	}
	if events&fdOOB != 0 {
		mask |= EXCEPT
	}
	if events&fdClose != 0 {
		mask |= HANGUP
	}
	if errCode != 0 {
		mask |= ERROR
	}
	return int(wParam), mask, errCode
}
