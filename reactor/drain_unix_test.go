//go:build !windows

package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/owacoder/skate-reactor/mux"
)

func TestDispatchDrainsBufferedOutputOnWriteReadiness(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	wfd := int(wr.Fd())
	require.NoError(t, unix.SetNonblock(wfd, true))

	h := &recordingHandler{}
	s := NewSocket(wfd, h, StateConnected, false)

	big := make([]byte, 1<<20)
	require.NoError(t, s.Write(big))
	require.True(t, s.PendingOutput())
	pendingBefore := len(s.outBuf)

	drained := make([]byte, 1<<20)
	n, err := rd.Read(drained)
	require.NoError(t, err)
	require.True(t, n > 0)

	re := New(newFakeMux())
	re.dispatchNonAccept(s, mux.WRITE)

	require.True(t, len(s.outBuf) < pendingBefore)
	require.Equal(t, 1, h.writes)
}

func TestDisconnectDuringDrainClosesOnceBufferEmpties(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	wfd := int(wr.Fd())
	require.NoError(t, unix.SetNonblock(wfd, true))

	h := &recordingHandler{}
	s := NewSocket(wfd, h, StateConnected, false)

	require.NoError(t, s.Write([]byte("hello")))
	require.False(t, s.PendingOutput())

	// Simulate a remainder still queued when Disconnect is requested.
	s.outBuf = append(s.outBuf, []byte("pending")...)
	require.NoError(t, s.Disconnect())
	require.Equal(t, StateDisconnecting, s.State())

	re := New(newFakeMux())
	re.owned[wfd] = s

	re.dispatchNonAccept(s, mux.WRITE)

	require.Equal(t, StateDisconnected, s.State())
	require.Equal(t, 1, h.disconnects)
	require.Equal(t, 0, re.Owned())
}
