//go:build !windows

package reactor

import "golang.org/x/sys/unix"

func rawRead(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func rawWrite(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func rawClose(fd int) error {
	return unix.Close(fd)
}

// acceptRaw accepts one pending connection on a non-blocking listener,
// returning (-1, ErrWouldBlock) when none is pending. It deliberately
// does not pass SOCK_NONBLOCK: whether the child starts blocking or
// inherits the listener's mode is the accept algorithm's own platform
// policy (see childInitialBlocking), applied afterward via SetBlocking.
func acceptRaw(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, &Error{Kind: WouldBlockKind, FD: fd, Op: "accept"}
		}
		return -1, &Error{Kind: OSKind, FD: fd, Op: "accept", Err: err}
	}
	return nfd, nil
}

func setNonblock(fd int, nonblock bool) error {
	return unix.SetNonblock(fd, nonblock)
}

func classifyReadError(fd int, err error) error {
	switch err {
	case unix.EAGAIN:
		return &Error{Kind: WouldBlockKind, FD: fd, Op: "read"}
	case unix.ECONNRESET:
		return &Error{Kind: ConnectionResetKind, FD: fd, Op: "read", Err: err}
	case unix.ECONNABORTED:
		return &Error{Kind: ConnectionAbortedKind, FD: fd, Op: "read", Err: err}
	default:
		return &Error{Kind: OSKind, FD: fd, Op: "read", Err: err}
	}
}

func classifyWriteError(fd int, err error) error {
	switch err {
	case unix.EAGAIN:
		return &Error{Kind: WouldBlockKind, FD: fd, Op: "write"}
	case unix.ECONNRESET:
		return &Error{Kind: ConnectionResetKind, FD: fd, Op: "write", Err: err}
	case unix.EPIPE:
		return &Error{Kind: ConnectionAbortedKind, FD: fd, Op: "write", Err: err}
	default:
		return &Error{Kind: OSKind, FD: fd, Op: "write", Err: err}
	}
}
