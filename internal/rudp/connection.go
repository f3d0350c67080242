package rudp

import (
	"bytes"
	"math/rand"
	"net"
	"time"
)

// State is one of the seven Connection states from spec.md §4.5.
type State int

const (
	InitInitiator State = iota
	InitAnswerer
	WaitingForInitAck
	WaitingConnectStatus
	WaitingRemoteConnectionApproval
	WaitingForAck
	ReadyForSend
)

func (s State) String() string {
	switch s {
	case InitInitiator:
		return "InitInitiator"
	case InitAnswerer:
		return "InitAnswerer"
	case WaitingForInitAck:
		return "WaitingForInitAck"
	case WaitingConnectStatus:
		return "WaitingConnectStatus"
	case WaitingRemoteConnectionApproval:
		return "WaitingRemoteConnectionApproval"
	case WaitingForAck:
		return "WaitingForAck"
	case ReadyForSend:
		return "ReadyForSend"
	default:
		return "Unknown"
	}
}

// Role distinguishes which end of the handshake a Connection plays; it is
// not an address, just a behavioral label (spec.md GLOSSARY).
type Role int

const (
	Initiator Role = iota
	Answerer
)

// Timing defaults, spec.md §6.
const (
	DefaultKeepAliveInterval           = 20000 * time.Millisecond
	DefaultRetryInterval               = 1000 * time.Millisecond
	DefaultConnectionApprovalInterval = 10000 * time.Millisecond
	DefaultRetryCount                  = 15
	keepAliveJitterMax                 = time.Second
)

// Endpoint is the (address:port) pair carried in an INIT handshake payload.
type Endpoint struct {
	Address string
	Port    int
}

// Timing bundles the four configurable deadlines/counters a Connection
// uses, threaded in from conf.Config rather than read from process-wide
// mutables (spec.md §9's "per-instance global state" note).
type Timing struct {
	KeepAliveInterval           time.Duration
	RetryInterval               time.Duration
	ConnectionApprovalInterval time.Duration
	RetryCount                  int
}

// DefaultTiming returns spec.md §6's stated defaults.
func DefaultTiming() Timing {
	return Timing{
		KeepAliveInterval:           DefaultKeepAliveInterval,
		RetryInterval:               DefaultRetryInterval,
		ConnectionApprovalInterval: DefaultConnectionApprovalInterval,
		RetryCount:                  DefaultRetryCount,
	}
}

// Connection is one logical flow: peer address + CID identify it uniquely
// within the Manager. It is driven entirely by the Manager (no fd of its
// own) — Update is called once per Reactor iteration, receiveDatagram once
// per inbound packet routed to it.
type Connection struct {
	mgr    *Manager
	peer   *net.UDPAddr
	cid    uint32
	role   Role
	timing Timing

	state State

	localSeq uint32
	peerSeq  int64 // -1 = nothing observed yet

	nextRetransmit time.Time
	nextKeepAlive  time.Time
	giveUpDeadline time.Time
	retriesUsed    int

	lastSentFrame []byte
	lastSentFlag  Flag

	appSendBuf bytes.Buffer

	bytesSent     uint64
	bytesReceived uint64

	closing bool

	// Handshake addressing, populated from the INIT payload (Answerer) or
	// supplied directly (Initiator).
	sourceEP Endpoint
	destEP   Endpoint

	// Hooks into the paired DataStream; internal/databridge wires these so
	// rudp never imports the bridge package (avoiding an import cycle).
	OnDeliver      func([]byte)    // non-duplicate DATA payload arrived
	OnApprovalDone func()          // ReadyForSend reached (Initiator + Answerer)
	OnClosed       func()          // connection gone, tell the paired DataStream
	OnConnectReq   func(Endpoint, Endpoint) // Answerer: dial the destination
}

func newConnection(mgr *Manager, peer *net.UDPAddr, cid uint32, role Role, timing Timing) *Connection {
	c := &Connection{
		mgr:     mgr,
		peer:    peer,
		cid:     cid,
		role:    role,
		timing:  timing,
		peerSeq: -1,
	}
	if role == Initiator {
		c.state = InitInitiator
	} else {
		c.state = InitAnswerer
	}
	return c
}

// Peer / CID / State expose read-only identity and status, used by the
// statistics and connections-table surfaces.
func (c *Connection) Peer() *net.UDPAddr { return c.peer }
func (c *Connection) CID() uint32         { return c.cid }
func (c *Connection) State() State        { return c.state }
func (c *Connection) BytesSent() uint64     { return c.bytesSent }
func (c *Connection) BytesReceived() uint64 { return c.bytesReceived }
func (c *Connection) LocalSeq() uint32      { return c.localSeq }
func (c *Connection) PeerSeq() int64        { return c.peerSeq }

// isHandshakeBlocking reports whether application bytes should be held
// back in the DataStream rather than forwarded, per spec.md §4.6.
func (c *Connection) isHandshakeBlocking() bool {
	switch c.state {
	case WaitingForAck, WaitingForInitAck, WaitingRemoteConnectionApproval:
		return true
	default:
		return false
	}
}

// ConnectToRemote (Initiator only) sends the four-line INIT payload and
// enters WaitingForInitAck, per spec.md §4.5 step 1.
func (c *Connection) ConnectToRemote(source, dest Endpoint) {
	c.sourceEP, c.destEP = source, dest
	payload := encodeInitPayload(source, dest)
	c.sendFrame(FlagInit, payload)
	c.state = WaitingForInitAck
}

// ApproveDataSocket (Answerer only) is called once the local TCP connect
// to the destination succeeds; it sends the empty-INIT approval and moves
// to WaitingForAck (spec.md §4.5 step 3, §4.6).
func (c *Connection) ApproveDataSocket() {
	c.sendFrame(FlagInit, nil)
}

// QueueBuffer appends application bytes to the send buffer and flushes one
// MaxDataLength frame immediately if the connection is free to send
// (spec.md §4.5's "at most one outstanding frame").
func (c *Connection) QueueBuffer(b []byte) {
	c.appSendBuf.Write(b)
	c.flushOne()
}

func (c *Connection) flushOne() {
	if c.state != ReadyForSend || c.appSendBuf.Len() == 0 {
		return
	}
	n := c.appSendBuf.Len()
	if n > MaxDataLength {
		n = MaxDataLength
	}
	chunk := make([]byte, n)
	copy(chunk, c.appSendBuf.Bytes()[:n])
	c.appSendBuf.Next(n)
	c.sendFrame(FlagData, chunk)
}

// sendFrame enqueues a non-ACK frame on the Manager's send queue and
// transitions to the appropriate waiting state.
func (c *Connection) sendFrame(flag Flag, payload []byte) {
	seq := c.localSeq
	d := Datagram{CID: c.cid, Flag: flag, Seq: seq, Payload: payload}
	raw, err := Encode(d)
	if err != nil {
		return
	}
	c.lastSentFrame = raw
	c.lastSentFlag = flag
	if flag == FlagData {
		c.bytesSent += uint64(len(payload))
	}
	switch flag {
	case FlagInit:
		if c.role == Initiator && c.state != WaitingRemoteConnectionApproval {
			c.state = WaitingForInitAck
		} else {
			c.state = WaitingForAck
		}
	case FlagData, FlagKeepAlive:
		c.state = WaitingForAck
	}
	c.mgr.enqueueSend(c, raw, flag)
}

// sendAck replies to a received frame's sequence number; ACKs are never
// themselves retransmitted or tracked for timers.
func (c *Connection) sendAck(seq uint32) {
	d := Datagram{CID: c.cid, Flag: FlagAck, Seq: seq}
	raw, err := Encode(d)
	if err != nil {
		return
	}
	c.mgr.enqueueSend(c, raw, FlagAck)
}

// datagramSent is the Manager's notification that a frame actually hit the
// wire; it arms the keep-alive timer unconditionally, but the retransmit
// timer only for non-ACK frames (rudpconnection.py:283-293): an ACK is
// never itself retried, so sending one must not push back the deadline
// for whatever DATA/INIT/KEEP-ALIVE frame is still outstanding.
func (c *Connection) datagramSent(flag Flag) {
	now := time.Now()
	jitter := time.Duration(rand.Int63n(int64(keepAliveJitterMax)))
	c.nextKeepAlive = now.Add(c.timing.KeepAliveInterval - jitter)
	if flag != FlagAck {
		c.nextRetransmit = now.Add(c.timing.RetryInterval)
	}
}

// receiveDatagram dispatches an inbound frame already routed to this
// Connection by the Manager.
func (c *Connection) receiveDatagram(d Datagram) {
	switch d.Flag {
	case FlagAck:
		c.receiveAck(d)
	case FlagClose:
		c.receiveClose()
	case FlagInit:
		c.receiveInit(d)
	case FlagData:
		c.receiveData(d)
	case FlagKeepAlive:
		c.receiveKeepAlive(d)
	}
}

func (c *Connection) receiveAck(d Datagram) {
	if d.Seq != c.localSeq {
		return
	}
	c.localSeq++
	c.retriesUsed = 0
	c.nextRetransmit = time.Time{}
	if c.state == WaitingForInitAck {
		c.state = WaitingRemoteConnectionApproval
		c.giveUpDeadline = time.Now().Add(c.timing.ConnectionApprovalInterval)
		return
	}
	c.state = ReadyForSend
	if c.role == Answerer && c.lastSentFlag == FlagInit && c.OnApprovalDone != nil {
		c.OnApprovalDone()
	}
	c.flushOne()
}

func (c *Connection) receiveClose() {
	c.terminate(false)
}

// receiveInit handles both handshake roles: a non-empty payload is the
// Initiator's opening INIT (Answerer side, or a retransmit of it); an
// empty payload is the Answerer's approval (Initiator side).
func (c *Connection) receiveInit(d Datagram) {
	if len(d.Payload) == 0 {
		// Approval packet.
		c.ackIfNew(d)
		if c.state == WaitingRemoteConnectionApproval {
			c.state = ReadyForSend
			c.giveUpDeadline = time.Time{}
			if c.OnApprovalDone != nil {
				c.OnApprovalDone()
			}
			c.flushOne()
		}
		return
	}
	source, dest, ok := parseInitPayload(d.Payload)
	if !ok {
		return
	}
	isNew := !c.hasSeenPeerSeq(d.Seq)
	c.ackIfNew(d)
	if !isNew {
		return
	}
	c.sourceEP, c.destEP = source, dest
	c.state = WaitingConnectStatus
	if c.OnConnectReq != nil {
		c.OnConnectReq(source, dest)
	}
}

func (c *Connection) receiveData(d Datagram) {
	isNew := !c.hasSeenPeerSeq(d.Seq)
	c.ackIfNew(d)
	if !isNew {
		return
	}
	c.bytesReceived += uint64(len(d.Payload))
	if c.OnDeliver != nil && len(d.Payload) > 0 {
		c.OnDeliver(d.Payload)
	}
}

func (c *Connection) receiveKeepAlive(d Datagram) {
	c.ackIfNew(d)
}

// hasSeenPeerSeq applies the dedup rule: sqn must strictly exceed the
// highest observed peer sequence number to be considered new.
func (c *Connection) hasSeenPeerSeq(seq uint32) bool {
	return int64(seq) <= c.peerSeq
}

// ackIfNew advances peerSeq on first sight of a sqn and always sends an
// ACK — this implementation chooses to ACK duplicates (spec.md Open
// Questions; decision recorded in SPEC_FULL.md) so a peer stuck retransmitting
// clears its timer promptly.
func (c *Connection) ackIfNew(d Datagram) {
	if int64(d.Seq) > c.peerSeq {
		c.peerSeq = int64(d.Seq)
	}
	c.sendAck(d.Seq)
}

// Update runs once per Reactor iteration: checks the three timers and
// flushes any pending application buffer if now free to send.
func (c *Connection) Update(now time.Time) {
	if c.closing {
		return
	}
	if c.state == WaitingRemoteConnectionApproval && !c.giveUpDeadline.IsZero() && !now.Before(c.giveUpDeadline) {
		c.terminate(true)
		return
	}
	if (c.state == WaitingForAck || c.state == WaitingForInitAck) &&
		!c.nextRetransmit.IsZero() && !now.Before(c.nextRetransmit) {
		if c.retriesUsed >= c.timing.RetryCount {
			c.terminate(false)
			return
		}
		c.retriesUsed++
		c.mgr.enqueueSend(c, c.lastSentFrame, c.lastSentFlag)
		return
	}
	if c.state == ReadyForSend && !c.nextKeepAlive.IsZero() && !now.Before(c.nextKeepAlive) {
		c.sendFrame(FlagKeepAlive, nil)
	}
	c.flushOne()
}

// SleepTime is the minimum time until this Connection's next armed
// deadline, or zero if none is armed.
func (c *Connection) SleepTime(now time.Time) (time.Duration, bool) {
	var best time.Duration
	found := false
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		if !found || d < best {
			best = d
			found = true
		}
	}
	consider(c.nextRetransmit)
	consider(c.nextKeepAlive)
	consider(c.giveUpDeadline)
	return best, found
}

// InitClose marks the connection closing, tears down the paired DataStream
// if not already closing, optionally sends CLOSE, and removes itself from
// the Manager immediately (spec.md §4.5 Close).
func (c *Connection) InitClose() { c.terminate(true) }

func (c *Connection) terminate(sendClose bool) {
	if c.closing {
		return
	}
	c.closing = true
	if sendClose {
		d := Datagram{CID: c.cid, Flag: FlagClose, Seq: c.localSeq}
		if raw, err := Encode(d); err == nil {
			c.mgr.enqueueSend(c, raw, FlagClose)
		}
	}
	if c.OnClosed != nil {
		c.OnClosed()
	}
	c.mgr.removeConnection(c)
}
