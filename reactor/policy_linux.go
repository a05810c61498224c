//go:build linux

package reactor

// childInitialBlocking implements the accept algorithm's platform
// policy (spec.md §4.D step 2): on Linux, accepted children are always
// blocking regardless of the listener's own mode, matching accept(2)'s
// behavior of never inheriting O_NONBLOCK from the listening socket.
func childInitialBlocking(listenerBlocking bool) bool {
	return true
}
