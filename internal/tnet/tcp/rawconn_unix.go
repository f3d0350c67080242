//go:build unix

package tcp

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// errWouldBlock mirrors reactor.ErrWouldBlock at the raw-socket layer so
// this package doesn't need to import reactor just for the sentinel.
var errWouldBlock = errors.New("tcp: would block")

// rawConn is a non-blocking TCP socket manipulated directly through
// golang.org/x/sys/unix, the same dependency the reactor's poll/select
// backends already pull in. Using raw fds (rather than net.Conn) is what
// lets the connect-in-progress state and EAGAIN be observed explicitly,
// as spec.md's Stream state machine requires.
type rawConn struct {
	fdNum int
}

func (r rawConn) fd() int { return r.fdNum }

func (r rawConn) read(buf []byte) (int, error) {
	n, err := unix.Read(r.fdNum, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, errWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func (r rawConn) write(buf []byte) (int, error) {
	n, err := unix.Write(r.fdNum, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, errWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func (r rawConn) close() error { return unix.Close(r.fdNum) }

// connectComplete checks SO_ERROR after a writable event fires during a
// non-blocking connect; ok=false means still in progress (spurious wake).
func (r rawConn) connectComplete() (ok bool, err error) {
	errno, serr := unix.GetsockoptInt(r.fdNum, unix.SOL_SOCKET, unix.SO_ERROR)
	if serr != nil {
		return false, serr
	}
	if errno == int(unix.EINPROGRESS) || errno == int(unix.EALREADY) {
		return false, nil
	}
	if errno != 0 {
		return false, unix.Errno(errno)
	}
	return true, nil
}

func (r rawConn) localAddr() net.Addr  { return sockaddrToAddr(unixGetsockname(r.fdNum)) }
func (r rawConn) remoteAddr() net.Addr { return sockaddrToAddr(unixGetpeername(r.fdNum)) }

func unixGetsockname(fd int) unix.Sockaddr {
	sa, _ := unix.Getsockname(fd)
	return sa
}

func unixGetpeername(fd int) unix.Sockaddr {
	sa, _ := unix.Getpeername(fd)
	return sa
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return nil
	}
}

func setNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

// newDialRawConn creates a non-blocking socket and issues connect(2); an
// EINPROGRESS result is expected and not an error, per spec.md §4.3.
func newDialRawConn(network, addr string) (rawConn, error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return rawConn{}, err
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return rawConn{}, err
	}
	if err := setNonblocking(fd); err != nil {
		unix.Close(fd)
		return rawConn{}, err
	}
	sa := tcpAddrToSockaddr(tcpAddr)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return rawConn{}, err
	}
	return rawConn{fdNum: fd}, nil
}

// newAcceptedRawConn wraps a freshly accept(2)'d descriptor, setting it
// non-blocking before handing it to a Stream.
func newAcceptedRawConn(fd int) (rawConn, error) {
	if err := setNonblocking(fd); err != nil {
		unix.Close(fd)
		return rawConn{}, err
	}
	return rawConn{fdNum: fd}, nil
}

func tcpAddrToSockaddr(a *net.TCPAddr) unix.Sockaddr {
	if ip4 := a.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = a.Port
		copy(sa.Addr[:], ip4)
		return &sa
	}
	var sa unix.SockaddrInet6
	sa.Port = a.Port
	copy(sa.Addr[:], a.IP.To16())
	return &sa
}
