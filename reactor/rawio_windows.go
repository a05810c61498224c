//go:build windows

package reactor

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	ws2_32dll       = windows.NewLazySystemDLL("ws2_32.dll")
	procIoctlsocket = ws2_32dll.NewProc("ioctlsocket")
)

const fionbio = 0x8004667e

func rawRead(fd int, buf []byte) (int, error) {
	return windows.Read(windows.Handle(fd), buf)
}

func rawWrite(fd int, buf []byte) (int, error) {
	return windows.Write(windows.Handle(fd), buf)
}

func rawClose(fd int) error {
	return windows.Closesocket(windows.Handle(fd))
}

// acceptRaw accepts one pending connection, returning (-1,
// ErrWouldBlock) when the listener (itself non-blocking) has none
// pending.
func acceptRaw(fd int) (int, error) {
	h, err := windows.Accept(windows.Handle(fd))
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return -1, &Error{Kind: WouldBlockKind, FD: fd, Op: "accept"}
		}
		return -1, &Error{Kind: OSKind, FD: fd, Op: "accept", Err: err}
	}
	return int(h), nil
}

// setNonblock issues ioctlsocket(FIONBIO), the Winsock equivalent of
// fcntl(O_NONBLOCK); x/sys/windows doesn't wrap it directly since it is
// socket-specific rather than a generic handle operation.
func setNonblock(fd int, nonblock bool) error {
	var mode uint32
	if nonblock {
		mode = 1
	}
	r1, _, err := procIoctlsocket.Call(uintptr(fd), uintptr(fionbio), uintptr(unsafe.Pointer(&mode)))
	if r1 != 0 {
		return err
	}
	return nil
}

func classifyReadError(fd int, err error) error {
	switch err {
	case windows.WSAEWOULDBLOCK:
		return &Error{Kind: WouldBlockKind, FD: fd, Op: "read"}
	case windows.WSAECONNRESET:
		return &Error{Kind: ConnectionResetKind, FD: fd, Op: "read", Err: err}
	case windows.WSAECONNABORTED:
		return &Error{Kind: ConnectionAbortedKind, FD: fd, Op: "read", Err: err}
	default:
		return &Error{Kind: OSKind, FD: fd, Op: "read", Err: err}
	}
}

func classifyWriteError(fd int, err error) error {
	switch err {
	case windows.WSAEWOULDBLOCK:
		return &Error{Kind: WouldBlockKind, FD: fd, Op: "write"}
	case windows.WSAECONNRESET:
		return &Error{Kind: ConnectionResetKind, FD: fd, Op: "write", Err: err}
	default:
		return &Error{Kind: OSKind, FD: fd, Op: "write", Err: err}
	}
}
