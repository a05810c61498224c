//go:build linux

package mux

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/owacoder/skate-reactor/logx"
)

// EpollMultiplexer is the Linux kernel-queue back-end (spec.md §4.A
// "Kernel-queue back-end"). Register/modify/unwatch translate 1:1 to
// epoll_ctl; Watching always reports 0 since epoll exposes no
// introspection API. UnwatchDead is a no-op: the kernel drops a
// descriptor's registration automatically once its last reference is
// closed.
type EpollMultiplexer struct {
	mu       sync.Mutex
	logger   logx.Logger
	epfd     int
	eventBuf []unix.EpollEvent
	known    map[int]struct{} // membership only; epoll has no Watching()
}

// NewEpoll creates and initializes an EpollMultiplexer.
func NewEpoll(opts ...Option) (*EpollMultiplexer, error) {
	o := resolveOptions(opts)
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &Error{Kind: ErrOSKind, Op: "epoll_create1", Err: err}
	}
	return &EpollMultiplexer{
		logger:   o.logger,
		epfd:     fd,
		eventBuf: make([]unix.EpollEvent, 1024),
		known:    make(map[int]struct{}),
	}, nil
}

func watchToEpoll(mask WatchMask) uint32 {
	var e uint32
	if mask&READ != 0 {
		e |= unix.EPOLLIN
	}
	if mask&WRITE != 0 {
		e |= unix.EPOLLOUT
	}
	if mask&EXCEPT != 0 {
		e |= unix.EPOLLPRI
	}
	return e
}

func epollToWatch(e uint32) WatchMask {
	var mask WatchMask
	if e&unix.EPOLLIN != 0 {
		mask |= READ
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= WRITE
	}
	if e&unix.EPOLLPRI != 0 {
		mask |= EXCEPT
	}
	if e&unix.EPOLLERR != 0 {
		mask |= ERROR
	}
	if e&unix.EPOLLHUP != 0 || e&unix.EPOLLRDHUP != 0 {
		mask |= HANGUP
	}
	return mask
}

// Watching always returns 0: epoll offers no way to read back a
// descriptor's registered mask, per spec.md §4.A.
func (p *EpollMultiplexer) Watching(fd int) WatchMask { return 0 }

func (p *EpollMultiplexer) Watch(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "watch", FD: fd}
	}
	ev := unix.EpollEvent{Events: watchToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return Unchanged, &Error{Kind: ErrOSKind, Op: "epoll_ctl(add)", FD: fd, Err: err}
	}
	p.mu.Lock()
	p.known[fd] = struct{}{}
	p.mu.Unlock()
	return MustBeNonBlocking, nil
}

func (p *EpollMultiplexer) Modify(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "modify", FD: fd}
	}
	ev := unix.EpollEvent{Events: watchToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return Unchanged, &Error{Kind: ErrOSKind, Op: "epoll_ctl(mod)", FD: fd, Err: err}
	}
	return Unchanged, nil
}

func (p *EpollMultiplexer) Unwatch(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return &Error{Kind: ErrOSKind, Op: "epoll_ctl(del)", FD: fd, Err: err}
	}
	p.mu.Lock()
	delete(p.known, fd)
	p.mu.Unlock()
	return nil
}

// UnwatchDead skips the epoll_ctl(DEL) syscall entirely: once the last
// reference to fd is closed, the kernel removes any epoll registration on
// its own, and repeating the removal would just fail with EBADF.
func (p *EpollMultiplexer) UnwatchDead(fd int) error {
	p.mu.Lock()
	delete(p.known, fd)
	p.mu.Unlock()
	return nil
}

func (p *EpollMultiplexer) Clear() {
	p.mu.Lock()
	fds := make([]int, 0, len(p.known))
	for fd := range p.known {
		fds = append(fds, fd)
	}
	p.known = make(map[int]struct{})
	p.mu.Unlock()
	for _, fd := range fds {
		unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
}

func (p *EpollMultiplexer) Poll(timeout Timeout, cb PollCallback) error {
	if !timeout.Valid() {
		return ErrInvalidTimeout
	}
	ms := -1
	if !timeout.IsInfinite() {
		ms = int(timeout.Micros() / 1000)
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return &Error{Kind: ErrOSKind, Op: "epoll_wait", Err: err}
	}
	if n == 0 {
		return ErrTimedOut
	}

	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		cb(Event{FD: int(ev.Fd), Mask: epollToWatch(ev.Events)})
	}
	return nil
}

func (p *EpollMultiplexer) Close() error {
	p.Clear()
	return unix.Close(p.epfd)
}
