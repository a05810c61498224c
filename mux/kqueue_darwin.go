//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package mux

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/owacoder/skate-reactor/logx"
)

// KqueueMultiplexer is the BSD/Darwin kernel-queue back-end (spec.md
// §4.A "Kernel-queue back-end"), supplementing the Linux epoll back-end
// per SPEC_FULL.md §D.1. kqueue models read and write interest as
// separate filters, so Watch/Modify translate one WatchMask into up to
// two EV_ADD/EV_DELETE changelist entries.
type KqueueMultiplexer struct {
	mu       sync.Mutex
	logger   logx.Logger
	kq       int
	eventBuf []unix.Kevent_t
	masks    map[int]WatchMask // tracked so Modify can diff filters
}

// NewKqueue creates and initializes a KqueueMultiplexer.
func NewKqueue(opts ...Option) (*KqueueMultiplexer, error) {
	o := resolveOptions(opts)
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, &Error{Kind: ErrOSKind, Op: "kqueue", Err: err}
	}
	unix.CloseOnExec(kq)
	return &KqueueMultiplexer{
		logger:   o.logger,
		kq:       kq,
		eventBuf: make([]unix.Kevent_t, 1024),
		masks:    make(map[int]WatchMask),
	}, nil
}

func (p *KqueueMultiplexer) changeFilters(fd int, old, new WatchMask) error {
	var changes []unix.Kevent_t
	addOrDel := func(filter int16, want bool, wasSet bool) {
		switch {
		case want && !wasSet:
			changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_ADD | unix.EV_ENABLE})
		case !want && wasSet:
			changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE})
		}
	}
	addOrDel(unix.EVFILT_READ, new&READ != 0, old&READ != 0)
	addOrDel(unix.EVFILT_WRITE, new&WRITE != 0, old&WRITE != 0)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

// Watching always returns 0: like epoll, kqueue offers no introspection
// of the currently-registered filter set.
func (p *KqueueMultiplexer) Watching(fd int) WatchMask { return 0 }

func (p *KqueueMultiplexer) Watch(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "watch", FD: fd}
	}
	if err := p.changeFilters(fd, 0, mask); err != nil {
		return Unchanged, &Error{Kind: ErrOSKind, Op: "kevent(add)", FD: fd, Err: err}
	}
	p.mu.Lock()
	p.masks[fd] = mask
	p.mu.Unlock()
	return MustBeNonBlocking, nil
}

func (p *KqueueMultiplexer) Modify(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "modify", FD: fd}
	}
	p.mu.Lock()
	old := p.masks[fd]
	p.mu.Unlock()
	if err := p.changeFilters(fd, old, mask); err != nil {
		return Unchanged, &Error{Kind: ErrOSKind, Op: "kevent(mod)", FD: fd, Err: err}
	}
	p.mu.Lock()
	p.masks[fd] = mask
	p.mu.Unlock()
	return Unchanged, nil
}

func (p *KqueueMultiplexer) Unwatch(fd int) error {
	p.mu.Lock()
	old := p.masks[fd]
	delete(p.masks, fd)
	p.mu.Unlock()
	if err := p.changeFilters(fd, old, 0); err != nil {
		return &Error{Kind: ErrOSKind, Op: "kevent(del)", FD: fd, Err: err}
	}
	return nil
}

// UnwatchDead mirrors epoll's contract: the kernel drops kqueue filters
// automatically when the last descriptor reference closes.
func (p *KqueueMultiplexer) UnwatchDead(fd int) error {
	p.mu.Lock()
	delete(p.masks, fd)
	p.mu.Unlock()
	return nil
}

func (p *KqueueMultiplexer) Clear() {
	p.mu.Lock()
	fds := make(map[int]WatchMask, len(p.masks))
	for fd, m := range p.masks {
		fds[fd] = m
	}
	p.masks = make(map[int]WatchMask)
	p.mu.Unlock()
	for fd, m := range fds {
		p.changeFilters(fd, m, 0)
	}
}

func (p *KqueueMultiplexer) Poll(timeout Timeout, cb PollCallback) error {
	if !timeout.Valid() {
		return ErrInvalidTimeout
	}
	var ts *unix.Timespec
	if !timeout.IsInfinite() {
		t := unix.NsecToTimespec(timeout.Micros() * 1000)
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return &Error{Kind: ErrOSKind, Op: "kevent(wait)", Err: err}
	}
	if n == 0 {
		return ErrTimedOut
	}

	merged := make(map[int]WatchMask, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		fd := int(ev.Ident)
		var mask WatchMask
		switch ev.Filter {
		case unix.EVFILT_READ:
			mask = READ
		case unix.EVFILT_WRITE:
			mask = WRITE
		}
		if ev.Flags&unix.EV_EOF != 0 {
			mask |= HANGUP
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			mask |= ERROR
		}
		if _, ok := merged[fd]; !ok {
			order = append(order, fd)
		}
		merged[fd] |= mask
	}
	for _, fd := range order {
		cb(Event{FD: fd, Mask: merged[fd]})
	}
	return nil
}

func (p *KqueueMultiplexer) Close() error {
	p.Clear()
	return unix.Close(p.kq)
}
