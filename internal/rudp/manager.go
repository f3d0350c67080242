package rudp

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
)

// pendingSend is one entry of the Manager's FIFO send queue.
type pendingSend struct {
	conn *Connection
	addr *net.UDPAddr
	raw  []byte
	flag Flag
}

// Manager is the single-socket datagram multiplexer: one non-blocking UDP
// socket, connections keyed by (peer address, CID), and a FIFO send queue.
// It is itself the reactor.Pollable registered for the RUDP port; every
// Connection it owns is driven indirectly through Manager.Update.
type Manager struct {
	reactor.Base

	sock *net.UDPConn
	fd   int
	re   *reactor.Reactor
	log  *flog.Logger

	byPeer map[string]map[uint32]*Connection // peer.String() -> cid -> Connection
	cids   map[string]*cidAllocator          // peer.String() -> allocator
	all    []*Connection

	sendQueue []pendingSend

	timing     Timing
	randomDrop int // 0..100, percent chance to discard an inbound datagram

	closing bool

	// OnNewAnswerer is invoked right after an Answerer Connection is
	// created from an unknown peer's INIT, before its first datagram is
	// processed; internal/databridge uses this to wire up the eventual
	// TCP dial to the destination once the handshake payload is parsed.
	OnNewAnswerer func(*Connection)

	// deferred holds callbacks submitted from outside the Reactor
	// goroutine (internal/socks5front's blocking accept loop is the only
	// caller); Update drains them each iteration so every Connection
	// mutation still happens on the single Reactor thread, per spec.md
	// §5's no-locking invariant for the CORE itself.
	deferredMu sync.Mutex
	deferred   []func()
}

// RunOnReactor queues fn to run on the next Reactor iteration, from
// whatever goroutine calls it. This is the one sanctioned crossing point
// for code that must bridge a foreign blocking API (socks5front) into the
// cooperative single-threaded model.
func (m *Manager) RunOnReactor(fn func()) {
	m.deferredMu.Lock()
	m.deferred = append(m.deferred, fn)
	m.deferredMu.Unlock()
}

func (m *Manager) drainDeferred() {
	m.deferredMu.Lock()
	work := m.deferred
	m.deferred = nil
	m.deferredMu.Unlock()
	for _, fn := range work {
		fn()
	}
}

// NewManager binds a non-blocking UDP socket on addr and registers the
// Manager with the Reactor.
func NewManager(r *reactor.Reactor, addr string, timing Timing, randomDrop int, log *flog.Logger) (*Manager, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, err
	}
	rawConn, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, err
	}
	var fd int
	err = rawConn.Control(func(f uintptr) { fd = int(f) })
	if err != nil {
		conn.Close()
		return nil, err
	}

	m := &Manager{
		sock:       conn,
		fd:         fd,
		re:         r,
		log:        log,
		byPeer:     make(map[string]map[uint32]*Connection),
		cids:       make(map[string]*cidAllocator),
		timing:     timing,
		randomDrop: randomDrop,
	}
	m.Base = reactor.NewBase(fd, r, reactor.DefaultTimeout, m.hasPending)
	m.Base.SetTerminateHook(func() { conn.Close() })
	return m, nil
}

func (m *Manager) FD() int { return m.fd }

func (m *Manager) hasPending() bool {
	return len(m.sendQueue) > 0 || len(m.all) > 0
}

// IOMask: ERR always set; IN always set (the socket never backs off
// reading); OUT set iff the send queue is non-empty.
func (m *Manager) IOMask() reactor.IOMask {
	mask := reactor.Err | reactor.In
	if len(m.sendQueue) > 0 {
		mask |= reactor.Out
	}
	return mask
}

// SleepTime is the minimum over every Connection's armed deadline and the
// Base default timeout.
func (m *Manager) SleepTime() time.Duration {
	best := m.Base.SleepTime()
	now := time.Now()
	for _, c := range m.all {
		if d, ok := c.SleepTime(now); ok && d < best {
			best = d
		}
	}
	return best
}

// Update ticks every live Connection and reaps any that closed themselves.
func (m *Manager) Update() {
	m.drainDeferred()
	now := time.Now()
	snap := make([]*Connection, len(m.all))
	copy(snap, m.all)
	for _, c := range snap {
		c.Update(now)
	}
	if m.closing && len(m.all) == 0 && len(m.sendQueue) == 0 {
		m.Terminate()
	}
}

// Read performs one non-blocking recvfrom, applies the random-drop test
// hook, parses, and routes by (peer, CID), per spec.md §4.4.
func (m *Manager) Read() error {
	buf := make([]byte, MaxDatagramSize)
	// The fd is also driven by our own poll/select backend via SyscallConn,
	// so a short deadline here just keeps a spurious wake-up from blocking
	// the whole Reactor; real readiness was already confirmed by the poll.
	m.sock.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, peer, err := m.sock.ReadFromUDP(buf)
	if err != nil {
		if isWouldBlock(err) {
			return nil
		}
		return err
	}
	if m.randomDrop > 0 && rand.Intn(100) < m.randomDrop {
		return nil
	}
	d, err := Parse(buf[:n])
	if err != nil {
		m.log.Debugf("rudp: dropping malformed datagram from %s: %v", peer, err)
		return nil
	}
	m.route(peer, d)
	return nil
}

func (m *Manager) route(peer *net.UDPAddr, d Datagram) {
	key := peer.String()
	conns, ok := m.byPeer[key]
	if ok {
		if c, ok := conns[d.CID]; ok {
			c.receiveDatagram(d)
			return
		}
	}
	if d.Flag == FlagInit && len(d.Payload) > 0 {
		c := newConnection(m, peer, d.CID, Answerer, m.timing)
		m.registerConnection(c)
		m.cidAllocatorFor(key).reserve(d.CID)
		if m.OnNewAnswerer != nil {
			m.OnNewAnswerer(c)
		}
		c.receiveDatagram(d)
		return
	}
	// Unknown + INIT + empty payload: an approval packet for a CID we no
	// longer know (already closed) — discard. Unknown + anything else:
	// discard.
}

// Write drains the FIFO send queue with best-effort sendto, notifying each
// Connection via datagramSent so it can arm its timers.
func (m *Manager) Write() error {
	for len(m.sendQueue) > 0 {
		item := m.sendQueue[0]
		m.sock.SetWriteDeadline(time.Now().Add(time.Millisecond))
		_, err := m.sock.WriteToUDP(item.raw, item.addr)
		if err != nil {
			if isWouldBlock(err) {
				return nil
			}
			m.log.Errorf("rudp: sendto %s: %v", item.addr, err)
		}
		m.sendQueue = m.sendQueue[1:]
		if item.conn != nil {
			item.conn.datagramSent(item.flag)
		}
	}
	return nil
}

func (m *Manager) enqueueSend(c *Connection, raw []byte, flag Flag) {
	m.sendQueue = append(m.sendQueue, pendingSend{conn: c, addr: c.peer, raw: raw, flag: flag})
}

func (m *Manager) cidAllocatorFor(peerKey string) *cidAllocator {
	a, ok := m.cids[peerKey]
	if !ok {
		a = newCIDAllocator()
		m.cids[peerKey] = a
	}
	return a
}

func (m *Manager) registerConnection(c *Connection) {
	key := c.peer.String()
	conns, ok := m.byPeer[key]
	if !ok {
		conns = make(map[uint32]*Connection)
		m.byPeer[key] = conns
	}
	conns[c.cid] = c
	m.all = append(m.all, c)
}

func (m *Manager) removeConnection(c *Connection) {
	key := c.peer.String()
	if conns, ok := m.byPeer[key]; ok {
		delete(conns, c.cid)
		if len(conns) == 0 {
			delete(m.byPeer, key)
		}
	}
	if a, ok := m.cids[key]; ok {
		a.release(c.cid)
	}
	for i, cc := range m.all {
		if cc == c {
			m.all = append(m.all[:i], m.all[i+1:]...)
			break
		}
	}
}

// InitConnection allocates the lowest unused CID for exitPeer, constructs
// an Initiator Connection, and sends the handshake INIT. spec.md §4.7.
func (m *Manager) InitConnection(exitPeer *net.UDPAddr, source, dest Endpoint) (*Connection, error) {
	key := exitPeer.String()
	cid, err := m.cidAllocatorFor(key).alloc()
	if err != nil {
		return nil, err
	}
	c := newConnection(m, exitPeer, cid, Initiator, m.timing)
	m.registerConnection(c)
	c.ConnectToRemote(source, dest)
	return c, nil
}

// CloseConnection is an idempotent removal from the mux, per spec.md §4.7.
func (m *Manager) CloseConnection(c *Connection) {
	c.InitClose()
}

// InitClose marks every Connection closing; the Manager itself terminates
// once closing, no Connections remain, and the send queue is empty
// (spec.md §4.4 Shutdown).
func (m *Manager) InitClose() {
	m.closing = true
	snap := make([]*Connection, len(m.all))
	copy(snap, m.all)
	for _, c := range snap {
		c.InitClose()
	}
}

// Connections returns a snapshot of every live Connection, for the
// statistics and connections-table surfaces.
func (m *Manager) Connections() []*Connection {
	out := make([]*Connection, len(m.all))
	copy(out, m.all)
	return out
}

// FindConnection looks up a Connection by (peer, cid) for connection-scoped
// statistics queries.
func (m *Manager) FindConnection(peer *net.UDPAddr, cid uint32) (*Connection, bool) {
	conns, ok := m.byPeer[peer.String()]
	if !ok {
		return nil, false
	}
	c, ok := conns[cid]
	return c, ok
}

func isWouldBlock(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return opErr.Timeout()
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	for err != nil {
		if oe, ok := err.(*net.OpError); ok {
			*target = oe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
