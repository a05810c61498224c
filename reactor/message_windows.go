//go:build windows

package reactor

import "github.com/owacoder/skate-reactor/mux"

// MessageReceived drives a Reactor built on a message-driven
// multiplexer (mux.MessageMultiplexer): the host routes its window
// procedure's wParam/lParam here instead of calling Poll. The
// listener's accept bit is handled by the accept path in dispatch;
// everything else follows the non-accept dispatch algorithm.
func (r *Reactor) MessageReceived(wParam, lParam uintptr) {
	fd, mask, errCode := mux.DecodeMessage(wParam, lParam)
	if errCode != 0 {
		mask |= mux.ERROR
	}
	r.dispatch(mux.Event{FD: fd, Mask: mask})
}
