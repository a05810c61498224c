//go:build linux

package mux

// NewDefault picks the platform's preferred back-end: kernel-queue
// (epoll) on Linux, per spec.md §4.B.
func NewDefault(opts ...Option) (Multiplexer, error) {
	return NewEpoll(opts...)
}
