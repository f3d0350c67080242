//go:build unix

package tcp

import (
	"net"

	"golang.org/x/sys/unix"
)

type unixListener struct {
	fdNum    int
	boundPrt int
}

func (u *unixListener) fd() int   { return u.fdNum }
func (u *unixListener) port() int { return u.boundPrt }

func (u *unixListener) close() error { return unix.Close(u.fdNum) }

func (u *unixListener) accept() (rawConn, error) {
	fd, _, err := unix.Accept(u.fdNum)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return rawConn{}, errWouldBlock
		}
		return rawConn{}, err
	}
	return newAcceptedRawConn(fd)
}

func newListenerImpl(addr string) (listenerImpl, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := tcpAddrToSockaddr(tcpAddr)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := setNonblocking(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	boundSa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	port := 0
	switch a := boundSa.(type) {
	case *unix.SockaddrInet4:
		port = a.Port
	case *unix.SockaddrInet6:
		port = a.Port
	}
	return &unixListener{fdNum: fd, boundPrt: port}, nil
}
