//go:build !unix

package tcp

import (
	"errors"
	"net"
	"time"
)

// errWouldBlock mirrors reactor.ErrWouldBlock at the raw-socket layer.
var errWouldBlock = errors.New("tcp: would block")

// rawConn on non-unix platforms falls back to net.Conn with a 1ms
// deadline trick to approximate non-blocking semantics; golang.org/x/sys/
// unix's socket-level primitives used on unix builds aren't portable.
type rawConn struct {
	conn net.Conn
	pfd  int
}

var fdCounter int

func (r rawConn) fd() int { return r.pfd }

func (r rawConn) read(buf []byte) (int, error) {
	r.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := r.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, errWouldBlock
		}
		return n, err
	}
	return n, nil
}

func (r rawConn) write(buf []byte) (int, error) {
	r.conn.SetWriteDeadline(time.Now().Add(time.Millisecond))
	n, err := r.conn.Write(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, errWouldBlock
		}
		return n, err
	}
	return n, nil
}

func (r rawConn) close() error { return r.conn.Close() }

func (r rawConn) connectComplete() (bool, error) { return true, nil }

func (r rawConn) localAddr() net.Addr  { return r.conn.LocalAddr() }
func (r rawConn) remoteAddr() net.Addr { return r.conn.RemoteAddr() }

func newDialRawConn(network, addr string) (rawConn, error) {
	conn, err := net.DialTimeout(network, addr, 5*time.Second)
	if err != nil {
		return rawConn{}, err
	}
	fdCounter++
	return rawConn{conn: conn, pfd: fdCounter}, nil
}

func newAcceptedRawConn(conn net.Conn) rawConn {
	fdCounter++
	return rawConn{conn: conn, pfd: fdCounter}
}
