// Package control implements the line-oriented TCP control protocol:
// key=value request blocks terminated by a blank line, "connect" and
// "statistics" operations, and the three response codes from spec.md §6.
package control

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"time"

	"rudprelay/internal/databridge"
	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
	"rudprelay/internal/tnet/tcp"
)

// Code is one of the three control-protocol response codes.
type Code int

const (
	CodeOK          Code = 0
	CodeBadRequest  Code = 1
	CodeNotFound    Code = 2
)

// Error is the typed error sum replacing the source's class-name string
// check (spec.md §9's design note), carrying the response code to send.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("control: code=%d %s", e.Code, e.Message) }

// Listen accepts control connections and constructs a Socket around each.
func Listen(r *reactor.Reactor, addr string, mgr *rudp.Manager, log *flog.Logger) (*tcp.Listener, error) {
	return tcp.Listen(r, addr, func(rr *reactor.Reactor, s *tcp.Stream) reactor.Pollable {
		return newSocket(rr, s, mgr, log)
	}, log)
}

// Socket parses one request at a time off the accepted Stream, line by
// line, and writes back the response.
type Socket struct {
	stream *tcp.Stream
	mgr    *rudp.Manager
	log    *flog.Logger
	buf    bytes.Buffer
}

func newSocket(r *reactor.Reactor, s *tcp.Stream, mgr *rudp.Manager, log *flog.Logger) *Socket {
	sock := &Socket{stream: s, mgr: mgr, log: log}
	s.OnData = sock.onData
	return sock
}

func (s *Socket) FD() int                 { return s.stream.FD() }
func (s *Socket) IOMask() reactor.IOMask   { return s.stream.IOMask() }
func (s *Socket) SleepTime() time.Duration { return s.stream.SleepTime() }
func (s *Socket) Read() error              { return s.stream.Read() }
func (s *Socket) Write() error             { return s.stream.Write() }
func (s *Socket) Update()                  { s.stream.Update() }
func (s *Socket) InitClose()               { s.stream.InitClose() }
func (s *Socket) Terminate()               { s.stream.Terminate() }

func (s *Socket) onData(chunk []byte) {
	s.buf.Write(chunk)
	for {
		raw := s.buf.Bytes()
		idx := bytes.Index(raw, []byte("\n\n"))
		if idx < 0 {
			return
		}
		block := make([]byte, idx)
		copy(block, raw[:idx])
		s.buf.Next(idx + 2)
		s.handleRequest(block)
	}
}

func (s *Socket) handleRequest(block []byte) {
	fields := parseFields(block)
	op := fields["op"]
	var resp map[string]string
	switch op {
	case "connect":
		resp = s.handleConnect(fields)
	case "statistics":
		resp = s.handleStatistics(fields)
	default:
		resp = map[string]string{"code": "1"}
	}
	s.stream.QueueSend(renderResponse(resp))
}

func parseFields(block []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range bytes.Split(block, []byte("\n")) {
		key, val, found := bytes.Cut(line, []byte("="))
		if !found {
			continue
		}
		out[string(key)] = string(val)
	}
	return out
}

func renderResponse(fields map[string]string) []byte {
	var buf bytes.Buffer
	// "code" always first, matching the wire examples in spec.md §6.
	if code, ok := fields["code"]; ok {
		fmt.Fprintf(&buf, "code=%s\n", code)
	}
	for k, v := range fields {
		if k == "code" {
			continue
		}
		fmt.Fprintf(&buf, "%s=%s\n", k, v)
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

// handleConnect implements op=connect: exit_address, exit_port,
// dest_address, dest_port, ttl (seconds; 0=infinite).
func (s *Socket) handleConnect(fields map[string]string) map[string]string {
	exitPort, err1 := strconv.Atoi(fields["exit_port"])
	destPort, err2 := strconv.Atoi(fields["dest_port"])
	ttlSec, err3 := strconv.Atoi(fields["ttl"])
	exitAddr := fields["exit_address"]
	destAddr := fields["dest_address"]
	if err1 != nil || err2 != nil || err3 != nil || exitAddr == "" || destAddr == "" {
		return map[string]string{"code": "1"}
	}
	exitPeer := &net.UDPAddr{IP: net.ParseIP(exitAddr), Port: exitPort}
	if exitPeer.IP == nil {
		return map[string]string{"code": "1"}
	}
	dest := rudp.Endpoint{Address: destAddr, Port: destPort}
	ttl := time.Duration(ttlSec) * time.Second

	dl, err := databridge.OpenDataListener(s.stream.Reactor(), s.mgr, ":0", exitPeer, dest, ttl, s.log)
	if err != nil {
		s.log.Errorf("control: open_data_listener: %v", err)
		return map[string]string{"code": "1"}
	}
	return map[string]string{"code": "0", "port": strconv.Itoa(dl.Port())}
}

// handleStatistics implements op=statistics.
func (s *Socket) handleStatistics(fields map[string]string) map[string]string {
	info := fields["info"]
	switch info {
	case "number_of_connections":
		return map[string]string{"code": "0", "value": strconv.Itoa(len(s.mgr.Connections()))}
	case "bytes_sent", "bytes_received", "sequence_number", "peer_sequence_number":
		return s.handleConnectionScopedStat(fields, info)
	case "remote_user", "connected_user":
		return s.handleConnectionScopedStat(fields, info)
	default:
		return map[string]string{"code": "1"}
	}
}

func (s *Socket) handleConnectionScopedStat(fields map[string]string, info string) map[string]string {
	addr := fields["rudp_address"]
	port, err1 := strconv.Atoi(fields["rudp_port"])
	cid, err2 := strconv.ParseUint(fields["cid"], 10, 32)
	if err1 != nil || err2 != nil || addr == "" {
		return map[string]string{"code": "1"}
	}
	peer := &net.UDPAddr{IP: net.ParseIP(addr), Port: port}
	if peer.IP == nil {
		return map[string]string{"code": "1"}
	}
	conn, ok := s.mgr.FindConnection(peer, uint32(cid))
	if !ok {
		return map[string]string{"code": "2"}
	}
	var value string
	switch info {
	case "bytes_sent":
		value = strconv.FormatUint(conn.BytesSent(), 10)
	case "bytes_received":
		value = strconv.FormatUint(conn.BytesReceived(), 10)
	case "sequence_number":
		value = strconv.FormatUint(uint64(conn.LocalSeq()), 10)
	case "peer_sequence_number":
		value = strconv.FormatInt(conn.PeerSeq(), 10)
	case "remote_user", "connected_user":
		value = conn.Peer().String()
	}
	return map[string]string{"code": "0", "value": value}
}
