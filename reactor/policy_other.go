//go:build !linux

package reactor

// childInitialBlocking implements the accept algorithm's platform
// policy (spec.md §4.D step 2): everywhere but Linux, an accepted
// child inherits the listener's blocking mode.
func childInitialBlocking(listenerBlocking bool) bool {
	return listenerBlocking
}
