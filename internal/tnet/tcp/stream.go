// Package tcp provides the non-blocking TCP Stream and Listener Pollables
// shared by the control, HTTP, and data-bridge surfaces.
package tcp

import (
	"bytes"
	"errors"
	"net"
	"time"

	"rudprelay/internal/reactor"
)

// ConnectState is the Stream connect-state machine: BeforeConnect ->
// Connecting -> Connected.
type ConnectState int

const (
	BeforeConnect ConnectState = iota
	Connecting
	Connected
)

// DefaultBlockSize is the chunk size used for each non-blocking read/write
// attempt.
const DefaultBlockSize = 4096

// DefaultRecvBufferLimit bounds Stream.recvBuf before backpressure kicks in
// by clearing the IN interest bit.
const DefaultRecvBufferLimit = 256 * 1024

// Stream wraps a single non-blocking TCP socket as a reactor.Pollable.
// Wrappers (databridge.DataStream, control.Socket, httpsrv.Socket) compose
// a Stream and add protocol-specific framing via OnData/DrainRecv and
// QueueSend.
type Stream struct {
	reactor.Base

	raw rawConn

	state     ConnectState
	recvBuf   bytes.Buffer
	recvLimit int
	sendBuf   bytes.Buffer
	blockSize int

	// OnConnected is invoked exactly once, the iteration the non-blocking
	// connect finishes; DataStream uses it to trigger the handshake
	// approval step.
	OnConnected func()
	// OnData is invoked with each chunk read off the wire, in order.
	OnData func([]byte)
	// OnClosed is invoked once, from the terminate hook, so an owner (a
	// Connection, say) can tear down its paired half.
	OnClosed func()
}

// NewConnected wraps an already-accepted, already non-blocking socket (the
// accept-side case: a Listener handed us a live connection).
func NewConnected(r *reactor.Reactor, raw rawConn, defaultTimeout time.Duration) *Stream {
	s := &Stream{raw: raw, state: Connected, blockSize: DefaultBlockSize, recvLimit: DefaultRecvBufferLimit}
	s.Base = reactor.NewBase(raw.fd(), r, defaultTimeout, s.hasPending)
	s.Base.SetTerminateHook(s.onTerminate)
	return s
}

// NewDialer issues the non-blocking connect to addr right away and returns
// the Stream in Connecting state; the first writable event completes it.
// A dialed Stream never waits in BeforeConnect.
func NewDialer(r *reactor.Reactor, network, addr string, defaultTimeout time.Duration) (*Stream, error) {
	raw, err := newDialRawConn(network, addr)
	if err != nil {
		return nil, err
	}
	s := &Stream{raw: raw, state: BeforeConnect, blockSize: DefaultBlockSize, recvLimit: DefaultRecvBufferLimit}
	s.Base = reactor.NewBase(raw.fd(), r, defaultTimeout, s.hasPending)
	s.Base.SetTerminateHook(s.onTerminate)
	s.state = Connecting
	return s, nil
}

func (s *Stream) hasPending() bool {
	return s.sendBuf.Len() > 0 || s.state == Connecting
}

func (s *Stream) onTerminate() {
	s.raw.close()
	if s.OnClosed != nil {
		s.OnClosed()
	}
}

// IOMask: ERR always set; OUT set if sendBuf non-empty or connect in
// progress; IN set if not closing and still accepting reads.
func (s *Stream) IOMask() reactor.IOMask {
	mask := reactor.Err
	if s.sendBuf.Len() > 0 || s.state == Connecting {
		mask |= reactor.Out
	}
	if s.receiving() {
		mask |= reactor.In
	}
	return mask
}

func (s *Stream) receiving() bool {
	return !s.Closing() && s.state == Connected && s.recvBuf.Len() < s.recvLimit
}

// Read drains the socket in blockSize chunks until would-block, EOF, or the
// receive buffer hits its limit (backpressure).
func (s *Stream) Read() error {
	if s.state != Connected {
		return nil
	}
	buf := make([]byte, s.blockSize)
	for s.recvBuf.Len() < s.recvLimit {
		n, err := s.raw.read(buf)
		if n > 0 {
			if s.OnData != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.OnData(chunk)
			} else {
				s.recvBuf.Write(buf[:n])
			}
		}
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return nil
			}
			return reactor.ErrDisconnected
		}
		if n == 0 {
			return reactor.ErrDisconnected
		}
	}
	return nil
}

// Write drains the send buffer with best-effort partial sends; on the first
// OUT event while Connecting, completes the non-blocking connect.
func (s *Stream) Write() error {
	if s.state == Connecting {
		ok, err := s.raw.connectComplete()
		if err != nil {
			return reactor.ErrDisconnected
		}
		if !ok {
			return nil
		}
		s.state = Connected
		if s.OnConnected != nil {
			s.OnConnected()
		}
		return nil
	}
	for s.sendBuf.Len() > 0 {
		n, err := s.raw.write(s.sendBuf.Bytes())
		if n > 0 {
			s.sendBuf.Next(n)
		}
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return nil
			}
			return reactor.ErrDisconnected
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// Update runs the Base default (terminate once closing and drained).
func (s *Stream) Update() { s.Base.Update() }

// QueueSend appends b to the send buffer; Write drains it on OUT readiness.
func (s *Stream) QueueSend(b []byte) { s.sendBuf.Write(b) }

// SendBacklog reports bytes still queued to send.
func (s *Stream) SendBacklog() int { return s.sendBuf.Len() }

// DrainRecv removes and returns everything buffered in recvBuf (the bytes
// accumulated by Read when OnData is nil). Callers that only want to
// forward data once some external condition clears — the data bridge's
// handshake-blocking gate — leave OnData unset and call DrainRecv once
// that condition is satisfied, so recvLimit remains the single bound on
// how much unforwarded data a Stream ever holds.
func (s *Stream) DrainRecv() []byte {
	if s.recvBuf.Len() == 0 {
		return nil
	}
	b := make([]byte, s.recvBuf.Len())
	copy(b, s.recvBuf.Bytes())
	s.recvBuf.Reset()
	return b
}

// State reports the connect-state-machine value.
func (s *Stream) State() ConnectState { return s.state }

// LocalAddr / RemoteAddr expose the wrapped socket's endpoints.
func (s *Stream) LocalAddr() net.Addr  { return s.raw.localAddr() }
func (s *Stream) RemoteAddr() net.Addr { return s.raw.remoteAddr() }
