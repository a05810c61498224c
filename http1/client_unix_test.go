//go:build !windows

package http1

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/owacoder/skate-reactor/reactor"
)

func TestClientConnSuppressesHeadResponseBody(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close(); _ = wr.Close() })

	fd := int(rd.Fd())
	require.NoError(t, unix.SetNonblock(fd, true))

	client := NewClientConn()
	socket := reactor.NewSocket(fd, client, reactor.StateConnected, false)
	client.Attach(socket)
	client.inFlight = append(client.inFlight, &Request{Method: MethodHEAD, Major: 1, Minor: 1})

	var got *Response
	client.OnResponse = func(req *Request, resp *Response) { got = resp }

	_, err = wr.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"))
	require.NoError(t, err)

	client.ReadyRead(socket, nil)

	require.NotNil(t, got)
	require.Empty(t, got.Body)
}
