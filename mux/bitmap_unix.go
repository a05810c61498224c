//go:build !windows

package mux

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/owacoder/skate-reactor/logx"
)

// fdSetBits is the number of descriptors representable by unix.FdSet,
// i.e. FD_SETSIZE.
const fdSetBits = 8 * 16 * 8 // len(unix.FdSet{}.Bits) * 8 bytes/word * 8 bits/byte, = 1024 on linux/darwin

func fdSetAdd(s *unix.FdSet, fd int) { s.Bits[fd/64] |= 1 << (uint(fd) % 64) }
func fdSetDel(s *unix.FdSet, fd int) { s.Bits[fd/64] &^= 1 << (uint(fd) % 64) }
func fdSetHas(s *unix.FdSet, fd int) bool {
	return s.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// BitmapMultiplexer is the portable `select`-style back-end (spec.md
// §4.A "Bitmap back-end"). It maintains three master bitmaps and a fixed
// maximum descriptor value of FD_SETSIZE, matching the original's
// fixed-capacity design.
type BitmapMultiplexer struct {
	mu      sync.Mutex
	logger  logx.Logger
	read    unix.FdSet
	write   unix.FdSet
	except  unix.FdSet
	masks   map[int]WatchMask
	maxFD   int
	hasAny  bool
}

// NewBitmap constructs a BitmapMultiplexer.
func NewBitmap(opts ...Option) *BitmapMultiplexer {
	o := resolveOptions(opts)
	return &BitmapMultiplexer{logger: o.logger, masks: make(map[int]WatchMask)}
}

func (b *BitmapMultiplexer) Watching(fd int) WatchMask {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.masks[fd]
}

func (b *BitmapMultiplexer) Watch(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "watch", FD: fd}
	}
	if fd < 0 || fd >= fdSetBits {
		return Unchanged, &Error{Kind: ErrNoBufferSpaceKind, Op: "watch", FD: fd}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.masks[fd]; ok {
		return Unchanged, &Error{Kind: ErrBadDescriptorKind, Op: "watch", FD: fd}
	}
	b.masks[fd] = mask
	b.applyLocked(fd, mask)
	if fd > b.maxFD {
		b.maxFD = fd
	}
	b.hasAny = true
	return MustBeNonBlocking, nil
}

func (b *BitmapMultiplexer) Modify(fd int, mask WatchMask) (BlockingAdjustment, error) {
	if mask&OutputOnly != 0 {
		return Unchanged, &Error{Kind: ErrInvalidArgumentKind, Op: "modify", FD: fd}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.masks[fd]; !ok {
		return Unchanged, &Error{Kind: ErrBadDescriptorKind, Op: "modify", FD: fd}
	}
	b.masks[fd] = mask
	b.applyLocked(fd, mask)
	return Unchanged, nil
}

func (b *BitmapMultiplexer) applyLocked(fd int, mask WatchMask) {
	fdSetDel(&b.read, fd)
	fdSetDel(&b.write, fd)
	fdSetDel(&b.except, fd)
	if mask&READ != 0 {
		fdSetAdd(&b.read, fd)
	}
	if mask&WRITE != 0 {
		fdSetAdd(&b.write, fd)
	}
	if mask&EXCEPT != 0 {
		fdSetAdd(&b.except, fd)
	}
}

func (b *BitmapMultiplexer) Unwatch(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.masks[fd]; !ok {
		return &Error{Kind: ErrBadDescriptorKind, Op: "unwatch", FD: fd}
	}
	delete(b.masks, fd)
	fdSetDel(&b.read, fd)
	fdSetDel(&b.write, fd)
	fdSetDel(&b.except, fd)
	return nil
}

func (b *BitmapMultiplexer) UnwatchDead(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.masks[fd]; !ok {
		return nil
	}
	delete(b.masks, fd)
	fdSetDel(&b.read, fd)
	fdSetDel(&b.write, fd)
	fdSetDel(&b.except, fd)
	return nil
}

func (b *BitmapMultiplexer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.masks = make(map[int]WatchMask)
	b.read = unix.FdSet{}
	b.write = unix.FdSet{}
	b.except = unix.FdSet{}
	b.maxFD = 0
	b.hasAny = false
}

func (b *BitmapMultiplexer) Poll(timeout Timeout, cb PollCallback) error {
	if !timeout.Valid() {
		return ErrInvalidTimeout
	}

	b.mu.Lock()
	workRead, workWrite, workExcept := b.read, b.write, b.except
	maxFD := b.maxFD
	b.mu.Unlock()

	var tv *unix.Timeval
	if !timeout.IsInfinite() {
		t := unix.NsecToTimeval(timeout.Micros() * 1000)
		tv = &t
	}

	n, err := unix.Select(maxFD+1, &workRead, &workWrite, &workExcept, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return &Error{Kind: ErrOSKind, Op: "poll", Err: err}
	}
	if n == 0 {
		return ErrTimedOut
	}

	for fd := 0; fd <= maxFD; fd++ {
		var mask WatchMask
		if fdSetHas(&workRead, fd) {
			mask |= READ
		}
		if fdSetHas(&workWrite, fd) {
			mask |= WRITE
		}
		if fdSetHas(&workExcept, fd) {
			mask |= EXCEPT
		}
		if mask != 0 {
			cb(Event{FD: fd, Mask: mask})
		}
	}
	return nil
}

func (b *BitmapMultiplexer) Close() error {
	b.Clear()
	return nil
}
