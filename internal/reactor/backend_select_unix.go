//go:build unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectBackend multiplexes descriptors with select(2), the source's
// fallback on platforms lacking a native poll (and usable as an explicit
// --poller-type=select choice anywhere).
type selectBackend struct{}

func newSelectBackend() (backend, error) {
	return selectBackend{}, nil
}

func (selectBackend) poll(interests map[int]IOMask, timeout time.Duration) ([]event, error) {
	var readFds, writeFds, errFds unix.FdSet
	maxFd := -1
	for fd, mask := range interests {
		if mask&In != 0 {
			fdSet(&readFds, fd)
		}
		if mask&Out != 0 {
			fdSet(&writeFds, fd)
		}
		if mask&Err != 0 {
			fdSet(&errFds, fd)
		}
		if fd > maxFd {
			maxFd = fd
		}
	}
	if maxFd < 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(maxFd+1, &readFds, &writeFds, &errFds, &tv)
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
	for fd := range interests {
		var m IOMask
		if fdIsSet(&readFds, fd) {
			m |= In
		}
		if fdIsSet(&writeFds, fd) {
			m |= Out
		}
		if fdIsSet(&errFds, fd) {
			m |= Err
		}
		if m != 0 {
			out = append(out, event{fd: fd, mask: m})
		}
	}
	return out, nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
