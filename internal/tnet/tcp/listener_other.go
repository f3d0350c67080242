//go:build !unix

package tcp

import (
	"net"
	"time"
)

type portableListener struct {
	ln  *net.TCPListener
	pfd int
	prt int
}

func (p *portableListener) fd() int      { return p.pfd }
func (p *portableListener) port() int    { return p.prt }
func (p *portableListener) close() error { return p.ln.Close() }

func (p *portableListener) accept() (rawConn, error) {
	p.ln.SetDeadline(time.Now().Add(time.Millisecond))
	conn, err := p.ln.AcceptTCP()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return rawConn{}, errWouldBlock
		}
		return rawConn{}, err
	}
	return newAcceptedRawConn(conn), nil
}

func newListenerImpl(addr string) (listenerImpl, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}
	fdCounter++
	port := 0
	if a, ok := ln.Addr().(*net.TCPAddr); ok {
		port = a.Port
	}
	return &portableListener{ln: ln, pfd: fdCounter, prt: port}, nil
}
