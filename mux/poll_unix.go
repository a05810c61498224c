//go:build !windows

package mux

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/owacoder/skate-reactor/logx"
)

// ArrayMultiplexer is the portable `poll`-style back-end (spec.md §4.A
// "Array back-end"). It keeps a flat slice of pollfd-equivalent entries;
// registration order is irrelevant, so Unwatch swaps the removed entry
// with the last one and truncates.
type ArrayMultiplexer struct {
	mu     sync.Mutex
	logger logx.Logger
	fds    []unix.PollFd
	index  map[int]int // fd -> position in fds
}

// NewArray constructs an ArrayMultiplexer.
func NewArray(opts ...Option) *ArrayMultiplexer {
	o := resolveOptions(opts)
	return &ArrayMultiplexer{logger: o.logger, index: make(map[int]int)}
}

func watchToPollEvents(mask WatchMask) int16 {
	var e int16
	if mask&READ != 0 {
		e |= unix.POLLIN
	}
	if mask&WRITE != 0 {
		e |= unix.POLLOUT
	}
	if mask&EXCEPT != 0 {
		e |= unix.POLLPRI
	}
	return e
}

func pollEventsToWatch(e int16) WatchMask {
	var mask WatchMask
	if e&unix.POLLIN != 0 {
		mask |= READ
	}
	if e&unix.POLLOUT != 0 {
		mask |= WRITE
	}
	if e&unix.POLLPRI != 0 {
		mask |= EXCEPT
	}
	if e&unix.POLLERR != 0 {
		mask |= ERROR
	}
	if e&unix.POLLHUP != 0 {
		mask |= HANGUP
	}
	if e&unix.POLLNVAL != 0 {
		mask |= INVALID
	}
	return mask
}

func (a *ArrayMultiplexer) Watching(fd int) WatchMask {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.index[fd]; ok {
		return pollEventsToWatch(a.fds[i].Events)
	}
	return 0
}

func (a *ArrayMultiplexer) Watch(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "watch", FD: fd}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.index[fd]; ok {
		return Unchanged, &Error{Kind: ErrBadDescriptorKind, Op: "watch", FD: fd}
	}
	a.index[fd] = len(a.fds)
	a.fds = append(a.fds, unix.PollFd{Fd: int32(fd), Events: watchToPollEvents(mask)})
	return MustBeNonBlocking, nil
}

func (a *ArrayMultiplexer) Modify(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "modify", FD: fd}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[fd]
	if !ok {
		return Unchanged, &Error{Kind: ErrBadDescriptorKind, Op: "modify", FD: fd}
	}
	a.fds[i].Events = watchToPollEvents(mask)
	return Unchanged, nil
}

func (a *ArrayMultiplexer) unwatchLocked(fd int) bool {
	i, ok := a.index[fd]
	if !ok {
		return false
	}
	last := len(a.fds) - 1
	a.fds[i] = a.fds[last]
	a.fds = a.fds[:last]
	delete(a.index, fd)
	if i != last {
		a.index[int(a.fds[i].Fd)] = i
	}
	return true
}

func (a *ArrayMultiplexer) Unwatch(fd int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.unwatchLocked(fd) {
		return &Error{Kind: ErrBadDescriptorKind, Op: "unwatch", FD: fd}
	}
	return nil
}

func (a *ArrayMultiplexer) UnwatchDead(fd int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unwatchLocked(fd)
	return nil
}

func (a *ArrayMultiplexer) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fds = a.fds[:0]
	a.index = make(map[int]int)
}

func (a *ArrayMultiplexer) Poll(timeout Timeout, cb PollCallback) error {
	if !timeout.Valid() {
		return ErrInvalidTimeout
	}

	a.mu.Lock()
	work := make([]unix.PollFd, len(a.fds))
	copy(work, a.fds)
	a.mu.Unlock()

	ms := -1
	if !timeout.IsInfinite() {
		ms = int(timeout.Micros() / 1000)
	}

	n, err := unix.Poll(work, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return &Error{Kind: ErrOSKind, Op: "poll", Err: err}
	}
	if n == 0 {
		return ErrTimedOut
	}

	for _, pfd := range work {
		if pfd.Revents == 0 {
			continue
		}
		cb(Event{FD: int(pfd.Fd), Mask: pollEventsToWatch(pfd.Revents)})
	}
	return nil
}

func (a *ArrayMultiplexer) Close() error {
	a.Clear()
	return nil
}
