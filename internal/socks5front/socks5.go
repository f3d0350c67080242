// Package socks5front is an additive local ingress: a SOCKS5 CONNECT
// request is translated directly into Manager.InitConnection against a
// configured default exit peer, skipping the control-protocol round trip
// for interactive use (SPEC_FULL.md's [ADD] SOCKS5 front-end). The control
// and HTTP surfaces remain the primary programmatic interface; this is a
// convenience ingress only, performing no auth beyond NO_AUTH.
//
// The txthinking/socks5 library owns a blocking accept-and-serve loop, one
// goroutine per client — a different concurrency model than the rest of
// this module's single-threaded Reactor. Rather than touching a
// Connection directly from that foreign goroutine, every inbound chunk is
// handed to Manager.RunOnReactor so the mutation still happens on the
// Reactor thread; outbound bytes are handed back over a channel the
// client goroutine blocks on, since OnDeliver itself already runs on the
// Reactor thread and channel send/receive needs no extra locking.
package socks5front

import (
	"net"
	"strconv"

	socks5 "github.com/txthinking/socks5"

	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
)

// Front is a local SOCKS5 listener bridging CONNECT requests into the
// relay's datagram layer.
type Front struct {
	server   *socks5.Server
	mgr      *rudp.Manager
	exitPeer *net.UDPAddr
	log      *flog.Logger
}

// New constructs a SOCKS5 front-end bound to bindAddr, forwarding every
// CONNECT to exitPeer via mgr. r is accepted for symmetry with the rest of
// the module's constructors even though this front-end doesn't register
// its own listener with the Reactor (see package doc).
func New(r *reactor.Reactor, mgr *rudp.Manager, bindAddr string, exitPeer *net.UDPAddr, log *flog.Logger) (*Front, error) {
	srv, err := socks5.NewClassicServer(bindAddr, "", "", "", 0, 0)
	if err != nil {
		return nil, err
	}
	return &Front{server: srv, mgr: mgr, exitPeer: exitPeer, log: log}, nil
}

// Serve blocks accepting SOCKS5 clients; callers run it in its own
// goroutine alongside Reactor.Run.
func (f *Front) Serve() error {
	return f.server.ListenAndServe(&relayHandler{front: f})
}

// Close stops accepting new SOCKS5 clients.
func (f *Front) Close() error { return f.server.Shutdown() }

type relayHandler struct {
	front *Front
}

func (h *relayHandler) TCPHandle(s *socks5.Server, conn *net.TCPConn, r *socks5.Request) error {
	if r.Cmd != socks5.CmdConnect {
		return socks5.ErrUnsupportCmd
	}
	host, portStr, err := net.SplitHostPort(r.Address())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	dest := rudp.Endpoint{Address: host, Port: port}

	localAddr, _ := conn.LocalAddr().(*net.TCPAddr)
	source := rudp.Endpoint{Address: "0.0.0.0", Port: 0}
	if localAddr != nil {
		source = rudp.Endpoint{Address: localAddr.IP.String(), Port: localAddr.Port}
	}

	inbound := make(chan []byte, 64)
	done := make(chan struct{})
	var rudpConn *rudp.Connection

	errCh := make(chan error, 1)
	h.front.mgr.RunOnReactor(func() {
		c, err := h.front.mgr.InitConnection(h.front.exitPeer, source, dest)
		if err != nil {
			errCh <- err
			return
		}
		c.OnDeliver = func(b []byte) {
			cp := append([]byte(nil), b...)
			select {
			case inbound <- cp:
			default:
				h.front.log.Warnf("socks5front: dropping delivered chunk, client too slow")
			}
		}
		c.OnClosed = func() { close(done) }
		rudpConn = c
		errCh <- nil
	})
	if err := <-errCh; err != nil {
		return err
	}

	reply, err := socks5.NewReply(socks5.RepSuccess, socks5.ATYPIPv4, net.IPv4zero, []byte{0, 0})
	if err != nil {
		return err
	}
	if _, err := reply.WriteTo(conn); err != nil {
		return err
	}

	go h.pumpToClient(conn, inbound, done)
	h.pumpFromClient(conn, rudpConn)
	h.front.mgr.RunOnReactor(func() { rudpConn.InitClose() })
	return nil
}

func (h *relayHandler) pumpToClient(conn *net.TCPConn, inbound <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case chunk := <-inbound:
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *relayHandler) pumpFromClient(conn *net.TCPConn, rudpConn *rudp.Connection) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			h.front.mgr.RunOnReactor(func() { rudpConn.QueueBuffer(chunk) })
		}
		if err != nil {
			return
		}
	}
}

func (h *relayHandler) UDPHandle(s *socks5.Server, addr *net.UDPAddr, d *socks5.Datagram) error {
	return socks5.ErrUnsupportCmd
}
