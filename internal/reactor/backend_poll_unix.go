//go:build unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend multiplexes descriptors with poll(2), the default backend on
// unix platforms (spec.md's "native readiness multiplexing where
// available").
type pollBackend struct{}

func newPollBackend() (backend, error) {
	return pollBackend{}, nil
}

func (pollBackend) poll(interests map[int]IOMask, timeout time.Duration) ([]event, error) {
	fds := make([]unix.PollFd, 0, len(interests))
	order := make([]int, 0, len(interests))
	for fd, mask := range interests {
		var events int16
		if mask&In != 0 {
			events |= unix.POLLIN
		}
		if mask&Out != 0 {
			events |= unix.POLLOUT
		}
		if mask&Err != 0 {
			events |= unix.POLLERR
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		order = append(order, fd)
	}

	ms := int(timeout.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, errInterrupted
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]event, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		var m IOMask
		if pfd.Revents&unix.POLLIN != 0 {
			m |= In
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			m |= Out
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			m |= Err
		}
		if m != 0 {
			out = append(out, event{fd: order[i], mask: m})
		}
	}
	return out, nil
}
