//go:build linux

// Package reactor's epoll backing: a thin wrapper over epoll_create1/
// epoll_ctl/epoll_wait via golang.org/x/sys/unix, the same dependency
// shockwave's socket package already pulls in for raw syscall option
// tuning. Edge-triggered registration matches the listening socket and
// connection sockets described by the event loop design.
package reactor

import "golang.org/x/sys/unix"

// Event is the platform readiness event type threaded through the reactor's
// dispatch loop.
type Event = unix.EpollEvent

type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: fd}, nil
}

func (p *poller) addRead(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	})
}

func (p *poller) modifyWrite(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: unix.EPOLLOUT | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	})
}

func (p *poller) modifyRead(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	})
}

func (p *poller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks for up to timeoutMS (-1 means forever) and returns the ready
// events. The caller-supplied buf is reused across calls to avoid per-tick
// allocation.
func (p *poller) wait(buf []Event, timeoutMS int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, buf, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

const (
	eventReadable = unix.EPOLLIN | unix.EPOLLPRI
	eventWritable = unix.EPOLLOUT
	eventHangup   = unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLRDHUP
)
