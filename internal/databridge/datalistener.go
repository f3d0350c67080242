package databridge

import (
	"fmt"
	"net"
	"time"

	cache "github.com/patrickmn/go-cache"

	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
	"rudprelay/internal/tnet/tcp"
)

// openPorts is a process-wide TTL-keyed registry of live DataListeners,
// keyed by bound port, giving the control/HTTP surfaces an O(1) "list open
// ports" view that self-prunes on expiry (SPEC_FULL.md's [ADD] to
// spec.md's DataListener). An entry expiring here does not close the
// listener itself; only DataListener.Close does that.
var openPorts = cache.New(cache.NoExpiration, time.Minute)

// ListedPort is a snapshot entry for the control/HTTP "open ports" view.
type ListedPort struct {
	Port     int
	ExitPeer string
	Dest     rudp.Endpoint
	Expires  time.Time // zero = infinite (TTL=0)
}

// ListOpenPorts returns every currently registered DataListener.
func ListOpenPorts() []ListedPort {
	items := openPorts.Items()
	out := make([]ListedPort, 0, len(items))
	for _, it := range items {
		if lp, ok := it.Object.(ListedPort); ok {
			out = append(out, lp)
		}
	}
	return out
}

// DataListener extends tcp.Listener with the exit-peer address, the final
// destination, and a TTL (spec.md §3, §4.7). The TTL sets the open-ports
// registry expiry and what Expired reports; the listener keeps accepting
// after the TTL until Close is called.
type DataListener struct {
	ln       *tcp.Listener
	mgr      *rudp.Manager
	exitPeer *net.UDPAddr
	dest     rudp.Endpoint
	ttl      time.Duration
	deadline time.Time // zero = infinite
	log      *flog.Logger
}

// OpenDataListener binds a listener on bindAddr (port 0 = ephemeral); every
// accept opens an Initiator Connection toward exitPeer/dest. ttl=0 means
// infinite (spec.md §4.7).
func OpenDataListener(r *reactor.Reactor, mgr *rudp.Manager, bindAddr string, exitPeer *net.UDPAddr, dest rudp.Endpoint, ttl time.Duration, log *flog.Logger) (*DataListener, error) {
	dl := &DataListener{mgr: mgr, exitPeer: exitPeer, dest: dest, ttl: ttl, log: log}
	if ttl > 0 {
		dl.deadline = time.Now().Add(ttl)
	}

	ln, err := tcp.Listen(r, bindAddr, dl.factory, log)
	if err != nil {
		return nil, err
	}
	dl.ln = ln

	entry := ListedPort{Port: ln.Port(), ExitPeer: exitPeer.String(), Dest: dest, Expires: dl.deadline}
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	openPorts.Set(portKey(ln.Port()), entry, expiration)

	return dl, nil
}

func portKey(port int) string { return fmt.Sprintf("%d", port) }

// Port reports the bound local port.
func (dl *DataListener) Port() int { return dl.ln.Port() }

func (dl *DataListener) factory(r *reactor.Reactor, s *tcp.Stream) reactor.Pollable {
	sourceAddr, sourcePort := splitHostPort(s.RemoteAddr())
	source := rudp.Endpoint{Address: sourceAddr, Port: sourcePort}
	conn, err := dl.mgr.InitConnection(dl.exitPeer, source, dl.dest)
	if err != nil {
		dl.log.Errorf("databridge: init_connection for accepted data socket: %v", err)
		s.Terminate()
		return s
	}
	ds := NewInitiatorSide(s, conn)
	return ds.Poll()
}

// Expired reports whether this listener's TTL has elapsed. DataListener
// isn't itself a Pollable (it delegates to the wrapped tcp.Listener), and
// nothing in this module calls Expired or closes the listener on expiry.
func (dl *DataListener) Expired(now time.Time) bool {
	return !dl.deadline.IsZero() && !now.Before(dl.deadline)
}

// Close tears down the listener and removes it from the open-ports
// registry; safe to call more than once.
func (dl *DataListener) Close() {
	dl.ln.InitClose()
	openPorts.Delete(portKey(dl.ln.Port()))
}

func splitHostPort(addr net.Addr) (string, int) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return "", 0
	}
	return tcpAddr.IP.String(), tcpAddr.Port
}
