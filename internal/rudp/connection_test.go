package rudp

import (
	"net"
	"testing"
	"time"
)

func testTiming() Timing {
	return Timing{
		KeepAliveInterval:          200 * time.Millisecond,
		RetryInterval:              10 * time.Millisecond,
		ConnectionApprovalInterval: 50 * time.Millisecond,
		RetryCount:                 3,
	}
}

func newTestConnection(t *testing.T, role Role) (*Connection, *Manager) {
	t.Helper()
	mgr := &Manager{
		byPeer: make(map[string]map[uint32]*Connection),
		cids:   make(map[string]*cidAllocator),
		timing: testTiming(),
	}
	peer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	c := newConnection(mgr, peer, 1, role, testTiming())
	mgr.registerConnection(c)
	return c, mgr
}

// Scenario 1 from spec.md §8: happy path handshake.
func TestHandshakeHappyPath(t *testing.T) {
	initiator, mgrI := newTestConnection(t, Initiator)
	source := Endpoint{Address: "A", Port: 1}
	dest := Endpoint{Address: "B", Port: 2}
	initiator.ConnectToRemote(source, dest)
	if initiator.state != WaitingForInitAck {
		t.Fatalf("expected WaitingForInitAck, got %v", initiator.state)
	}
	if len(mgrI.sendQueue) != 1 {
		t.Fatalf("expected one queued INIT frame")
	}
	initFrame := mgrI.sendQueue[0].raw
	initiator.datagramSent(FlagInit)

	answerer, mgrA := newTestConnection(t, Answerer)
	var gotSource, gotDest Endpoint
	answerer.OnConnectReq = func(s, d Endpoint) { gotSource, gotDest = s, d }
	d, err := Parse(initFrame)
	if err != nil {
		t.Fatalf("parse init frame: %v", err)
	}
	answerer.receiveDatagram(d)
	if answerer.state != WaitingConnectStatus {
		t.Fatalf("expected WaitingConnectStatus, got %v", answerer.state)
	}
	if gotSource != source || gotDest != dest {
		t.Fatalf("handshake addresses not delivered: %+v %+v", gotSource, gotDest)
	}
	if len(mgrA.sendQueue) != 1 {
		t.Fatalf("expected answerer to have queued an ACK")
	}

	// Answerer's local TCP connect completes -> sends approval INIT.
	answerer.ApproveDataSocket()
	if answerer.state != WaitingForAck {
		t.Fatalf("expected WaitingForAck after approval send, got %v", answerer.state)
	}

	// Initiator receives the ACK for its INIT.
	ackRaw := mgrA.sendQueue[0].raw
	ackFrame, _ := Parse(ackRaw)
	mgrI.sendQueue = nil
	initiator.receiveDatagram(ackFrame)
	if initiator.state != WaitingRemoteConnectionApproval {
		t.Fatalf("expected WaitingRemoteConnectionApproval, got %v", initiator.state)
	}
	if initiator.localSeq != 1 {
		t.Fatalf("expected local_sequence_number=1, got %d", initiator.localSeq)
	}

	// Initiator receives the Answerer's empty-INIT approval.
	approvalRaw := mgrA.sendQueue[len(mgrA.sendQueue)-1].raw
	approvalFrame, _ := Parse(approvalRaw)
	initiator.receiveDatagram(approvalFrame)
	if initiator.state != ReadyForSend {
		t.Fatalf("expected ReadyForSend, got %v", initiator.state)
	}
}

// Scenario 3 from spec.md §8: retry exhaustion closes without CLOSE.
func TestRetryExhaustionClosesWithoutClose(t *testing.T) {
	c, mgr := newTestConnection(t, Initiator)
	closed := false
	c.OnClosed = func() { closed = true }
	c.ConnectToRemote(Endpoint{Address: "A", Port: 1}, Endpoint{Address: "B", Port: 2})
	c.datagramSent(FlagInit)

	now := time.Now()
	for i := 0; i < c.timing.RetryCount; i++ {
		now = now.Add(c.timing.RetryInterval + time.Millisecond)
		c.Update(now)
		if c.closing {
			t.Fatalf("connection closed early at retry %d", i)
		}
		c.datagramSent(c.lastSentFlag)
	}
	now = now.Add(c.timing.RetryInterval + time.Millisecond)
	c.Update(now)
	if !c.closing {
		t.Fatalf("expected connection to close after exhausting retries")
	}
	if !closed {
		t.Fatalf("expected OnClosed to fire")
	}
	// Last queued frame must not be a CLOSE frame (closes silently).
	last := mgr.sendQueue[len(mgr.sendQueue)-1]
	d, _ := Parse(last.raw)
	if d.Flag == FlagClose {
		t.Fatalf("retry exhaustion must not send CLOSE")
	}
}

// Scenario 4: approval timeout closes WITH CLOSE.
func TestApprovalTimeoutSendsClose(t *testing.T) {
	c, mgr := newTestConnection(t, Initiator)
	c.ConnectToRemote(Endpoint{Address: "A", Port: 1}, Endpoint{Address: "B", Port: 2})
	c.datagramSent(FlagInit)
	// Simulate receiving the ACK for the INIT.
	c.receiveAck(Datagram{Flag: FlagAck, Seq: 0})
	if c.state != WaitingRemoteConnectionApproval {
		t.Fatalf("expected WaitingRemoteConnectionApproval, got %v", c.state)
	}
	mgr.sendQueue = nil
	c.Update(c.giveUpDeadline.Add(time.Millisecond))
	if !c.closing {
		t.Fatalf("expected connection to close on approval timeout")
	}
	if len(mgr.sendQueue) == 0 {
		t.Fatalf("expected a CLOSE frame to be queued")
	}
	d, _ := Parse(mgr.sendQueue[len(mgr.sendQueue)-1].raw)
	if d.Flag != FlagClose {
		t.Fatalf("expected CLOSE frame, got %v", d.Flag)
	}
}

// Scenario 6: duplicate DATA delivery does not advance bytes_received or
// deliver to the application, but MAY be ACKed.
func TestDuplicateDataNotDelivered(t *testing.T) {
	c, mgr := newTestConnection(t, Answerer)
	c.state = ReadyForSend
	c.peerSeq = 5
	delivered := false
	c.OnDeliver = func([]byte) { delivered = true }

	mgr.sendQueue = nil
	c.receiveDatagram(Datagram{Flag: FlagData, Seq: 5, Payload: []byte("replay")})
	if delivered {
		t.Fatalf("duplicate DATA must not be delivered to the application")
	}
	if c.bytesReceived != 0 {
		t.Fatalf("bytes_received must not increase on duplicate, got %d", c.bytesReceived)
	}
	if len(mgr.sendQueue) != 1 {
		t.Fatalf("expected an ACK to still be sent for the duplicate")
	}
	d, _ := Parse(mgr.sendQueue[0].raw)
	if d.Flag != FlagAck {
		t.Fatalf("expected ACK frame for duplicate, got %v", d.Flag)
	}
}

func TestNewDataIsDeliveredAndCountsBytes(t *testing.T) {
	c, _ := newTestConnection(t, Answerer)
	c.state = ReadyForSend
	c.peerSeq = 5
	var got []byte
	c.OnDeliver = func(b []byte) { got = b }
	c.receiveDatagram(Datagram{Flag: FlagData, Seq: 6, Payload: []byte("hello")})
	if string(got) != "hello" {
		t.Fatalf("expected delivery of new data, got %q", got)
	}
	if c.bytesReceived != 5 {
		t.Fatalf("expected bytes_received=5, got %d", c.bytesReceived)
	}
	if c.peerSeq != 6 {
		t.Fatalf("expected peerSeq advanced to 6, got %d", c.peerSeq)
	}
}

// An ACK going out for an unrelated inbound datagram must not push back
// the retransmit deadline of whatever non-ACK frame is still outstanding.
func TestAckSendDoesNotResetRetransmitDeadline(t *testing.T) {
	c, _ := newTestConnection(t, Initiator)
	c.ConnectToRemote(Endpoint{Address: "A", Port: 1}, Endpoint{Address: "B", Port: 2})
	c.datagramSent(FlagInit)
	deadline := c.nextRetransmit
	if deadline.IsZero() {
		t.Fatalf("expected nextRetransmit armed after sending INIT")
	}

	time.Sleep(time.Millisecond)
	c.sendAck(42)
	c.datagramSent(FlagAck)

	if !c.nextRetransmit.Equal(deadline) {
		t.Fatalf("ACK send must not move nextRetransmit: before=%v after=%v", deadline, c.nextRetransmit)
	}
}

func TestAtMostOneOutstandingFrame(t *testing.T) {
	c, mgr := newTestConnection(t, Initiator)
	c.state = ReadyForSend
	c.QueueBuffer([]byte("first"))
	if c.state != WaitingForAck {
		t.Fatalf("expected WaitingForAck after first queue, got %v", c.state)
	}
	queuedBefore := len(mgr.sendQueue)
	c.QueueBuffer([]byte("second"))
	if len(mgr.sendQueue) != queuedBefore {
		t.Fatalf("a second frame must not be sent while one is outstanding")
	}
	if c.appSendBuf.Len() != len("second") {
		t.Fatalf("expected second payload held in the application buffer")
	}
}
