//go:build windows

package mux

import (
	"sync"

	"golang.org/x/sys/windows"

	"github.com/owacoder/skate-reactor/logx"
)

// ArrayMultiplexer is the portable `poll`-style back-end on Windows,
// backed by WSAPoll. Per spec.md §4.A, PRI (EXCEPT) cannot be requested
// on this platform: the bit is silently dropped from the outgoing mask,
// but POLLHUP/POLLNVAL are still reported on the way back.
type ArrayMultiplexer struct {
	mu     sync.Mutex
	logger logx.Logger
	fds    []windows.WSAPollFd
	index  map[int]int
}

// NewArray constructs an ArrayMultiplexer.
func NewArray(opts ...Option) *ArrayMultiplexer {
	o := resolveOptions(opts)
	return &ArrayMultiplexer{logger: o.logger, index: make(map[int]int)}
}

func watchToPollEvents(mask WatchMask) int16 {
	var e int16
	if mask&READ != 0 {
		e |= windows.POLLIN
	}
	if mask&WRITE != 0 {
		e |= windows.POLLOUT
	}
	// EXCEPT (PRI) is not representable via WSAPoll; dropped per spec.
	return e
}

func pollEventsToWatch(e int16) WatchMask {
	var mask WatchMask
	if e&windows.POLLIN != 0 {
		mask |= READ
	}
	if e&windows.POLLOUT != 0 {
		mask |= WRITE
	}
	if e&windows.POLLHUP != 0 {
		mask |= HANGUP
	}
	if e&windows.POLLNVAL != 0 {
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
	a.fds = append(a.fds, windows.WSAPollFd{Fd: windows.Handle(fd), Events: watchToPollEvents(mask)})
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
	work := make([]windows.WSAPollFd, len(a.fds))
	copy(work, a.fds)
	a.mu.Unlock()

	if len(work) == 0 {
		return ErrTimedOut
	}

	ms := int32(-1)
	if !timeout.IsInfinite() {
		ms = int32(timeout.Micros() / 1000)
	}

	n, err := windows.WSAPoll(work, ms)
	if err != nil {
		return &Error{Kind: ErrOSKind, Op: "wsapoll", Err: err}
	}
	if n == 0 {
		return ErrTimedOut
	}

	for _, pfd := range work {
		if pfd.REvents == 0 {
			continue
		}
		cb(Event{FD: int(pfd.Fd), Mask: pollEventsToWatch(pfd.REvents)})
	}
	return nil
}

func (a *ArrayMultiplexer) Close() error {
	a.Clear()
	return nil
}
