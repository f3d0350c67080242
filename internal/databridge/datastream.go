// Package databridge bridges a local TCP client/destination connection to
// a paired rudp.Connection, composing TCP backpressure with the
// handshake-blocking states of the reliable datagram layer.
package databridge

import (
	"time"

	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
	"rudprelay/internal/tnet/tcp"
)

// DataStream pairs one tcp.Stream with one rudp.Connection, 1:1, with
// symmetric close semantics (spec.md §4.6, §3 "DataStream").
type DataStream struct {
	stream *tcp.Stream
	conn   *rudp.Connection
}

// NewInitiatorSide wraps an accepted local-client socket together with a
// freshly created Initiator Connection (a DataListener accept).
func NewInitiatorSide(stream *tcp.Stream, conn *rudp.Connection) *DataStream {
	ds := &DataStream{stream: stream, conn: conn}
	ds.wire()
	return ds
}

// NewAnswererSide wraps a Stream mid-dial to the final destination,
// together with the Answerer Connection that requested it.
func NewAnswererSide(stream *tcp.Stream, conn *rudp.Connection) *DataStream {
	ds := &DataStream{stream: stream, conn: conn}
	ds.wire()
	return ds
}

func (ds *DataStream) wire() {
	// OnData is deliberately left unset: with no per-chunk callback, Stream
	// accumulates reads into its own recvBuf (bounded by recvLimit) instead
	// of handing us bytes immediately. That bound is what gives us real
	// backpressure while the Connection is handshake-blocking, per spec.md
	// §4.6 — recvBuf fills, receiving() goes false, the IN interest drops,
	// and the kernel's TCP receive window does the rest.
	ds.stream.OnConnected = ds.onTCPConnected
	ds.stream.OnClosed = ds.onTCPClosed
	ds.conn.OnDeliver = ds.onConnectionData
	ds.conn.OnClosed = ds.onConnectionClosed
}

// flushPending drains the Stream's recvBuf into the Connection once it is
// no longer handshake-blocking; called every Reactor iteration via Update
// so bytes move as soon as the state allows. While blocking, it is a
// no-op: the bytes stay put in Stream's bounded recvBuf rather than in an
// unbounded buffer of our own (spec.md §8 scenario 5's
// receive_buffer.len() <= receive_buffer_limit invariant).
func (ds *DataStream) flushPending() {
	if ds.blocking() {
		return
	}
	if b := ds.stream.DrainRecv(); len(b) > 0 {
		ds.conn.QueueBuffer(b)
	}
}

func (ds *DataStream) blocking() bool {
	switch ds.conn.State() {
	case rudp.WaitingForAck, rudp.WaitingForInitAck, rudp.WaitingRemoteConnectionApproval:
		return true
	default:
		return false
	}
}

// onTCPConnected fires once the Answerer side's local TCP connect to the
// final destination completes; it triggers the handshake approval step.
func (ds *DataStream) onTCPConnected() {
	ds.conn.ApproveDataSocket()
}

// onConnectionData is the rudp.Connection's delivery hook: a DATA payload
// arrived and should go out on the TCP send buffer.
func (ds *DataStream) onConnectionData(payload []byte) {
	ds.stream.QueueSend(payload)
}

// onConnectionClosed fires when the Connection tears down; the paired
// Stream is told to close too (spec.md's "owns its paired DataStream;
// when either terminates, the other is instructed to close").
func (ds *DataStream) onConnectionClosed() {
	ds.stream.InitClose()
}

// onTCPClosed is the symmetric direction: the local socket went away, so
// the Connection should close too.
func (ds *DataStream) onTCPClosed() {
	ds.conn.InitClose()
}

// Update should be called once per Reactor iteration (typically from the
// owning Pollable's own Update, or a dedicated lightweight Pollable) to
// retry draining the Stream's recvBuf as the Connection's state advances
// out of a handshake-blocking state.
func (ds *DataStream) Update() { ds.flushPending() }

// Poll returns a reactor.Pollable wrapping the underlying tcp.Stream, plus
// this bridge's per-iteration Update hook layered on top.
func (ds *DataStream) Poll() reactor.Pollable { return &dataStreamPollable{ds: ds} }

type dataStreamPollable struct {
	ds *DataStream
}

func (p *dataStreamPollable) FD() int                      { return p.ds.stream.FD() }
func (p *dataStreamPollable) IOMask() reactor.IOMask        { return p.ds.stream.IOMask() }
func (p *dataStreamPollable) SleepTime() time.Duration      { return p.ds.stream.SleepTime() }
func (p *dataStreamPollable) Read() error                   { return p.ds.stream.Read() }
func (p *dataStreamPollable) Write() error                  { return p.ds.stream.Write() }
func (p *dataStreamPollable) Update() {
	p.ds.stream.Update()
	p.ds.Update()
}
func (p *dataStreamPollable) InitClose() { p.ds.stream.InitClose() }
func (p *dataStreamPollable) Terminate() { p.ds.stream.Terminate() }
