//go:build linux

package reactor

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// openListener creates a non-blocking, edge-triggered-ready TCP listening
// socket on addr, with SO_REUSEADDR set so a restarted server can rebind a
// port still in TIME_WAIT, matching the socket tuning philosophy of
// shockwave's socket package (there applied via SyscallConn on a net.Listener;
// here applied directly since the reactor owns the raw fd for epoll).
func openListener(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	} else if tcpAddr.IP != nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if domain == unix.AF_INET6 {
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		if err := unix.Bind(fd, sa6); err != nil {
			unix.Close(fd)
			return -1, err
		}
	} else if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// acceptOne performs a single non-blocking accept4, returning the new fd
// (set non-blocking and close-on-exec already via the accept4 flags), or
// syscall.EAGAIN when the backlog is drained.
func acceptOne(listenFd int) (int, error) {
	nfd, _, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}

func closeFD(fd int) error { return syscall.Close(fd) }

// openSpareFD reserves a single throwaway descriptor at startup so an
// EMFILE during accept can be survived: closing the spare frees one slot,
// draining exactly one pending connection, which is immediately closed,
// after which the spare is reopened.
func openSpareFD() (int, error) {
	return unix.Open("/dev/null", unix.O_RDONLY, 0)
}
