// Package httpsrv implements the minimal GET-only HTTP operator UI as its
// own Pollable state machine (not net/http, so it can share the single
// Reactor instead of spinning up its own listener goroutine).
package httpsrv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
	"rudprelay/internal/tnet/tcp"
)

// serviceState is the HTTPService FSM's states, mirroring httpservice.py.
type serviceState int

const (
	receiveHeaders serviceState = iota
	prepareResponse
	sendResponse
	finished
)

// Listen accepts HTTP connections and constructs a Socket around each.
func Listen(r *reactor.Reactor, addr string, mgr *rudp.Manager, log *flog.Logger) (*tcp.Listener, error) {
	return tcp.Listen(r, addr, func(rr *reactor.Reactor, s *tcp.Stream) reactor.Pollable {
		return newSocket(rr, s, mgr, log)
	}, log)
}

// Socket is the GET-only HTTP/1.1 request handler.
type Socket struct {
	stream *tcp.Stream
	mgr    *rudp.Manager
	log    *flog.Logger
	buf    bytes.Buffer
	state  serviceState
}

func newSocket(r *reactor.Reactor, s *tcp.Stream, mgr *rudp.Manager, log *flog.Logger) *Socket {
	sock := &Socket{stream: s, mgr: mgr, log: log, state: receiveHeaders}
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
	if s.state != receiveHeaders {
		return
	}
	s.buf.Write(chunk)
	idx := bytes.Index(s.buf.Bytes(), []byte("\r\n\r\n"))
	if idx < 0 {
		return
	}
	headerBlock := s.buf.String()[:idx]
	s.state = prepareResponse
	s.handleRequest(headerBlock)
	s.state = finished
}

func (s *Socket) handleRequest(headerBlock string) {
	lines := strings.Split(headerBlock, "\r\n")
	if len(lines) == 0 {
		s.writeError(500, "empty request")
		return
	}
	requestLine := strings.Fields(lines[0])
	if len(requestLine) < 2 || requestLine[0] != "GET" {
		s.writeError(500, "only GET is supported")
		return
	}
	path := requestLine[1]
	svc := routeService(path, s.mgr)
	if svc == nil {
		s.writeError(404, "not found")
		return
	}
	body := svc.Render()
	s.writeResponse(200, "OK", body)
}

func (s *Socket) writeResponse(code int, status string, body []byte) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", code, status)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("Content-Type: text/html\r\n\r\n")
	buf.Write(body)
	s.stream.QueueSend(buf.Bytes())
}

func (s *Socket) writeError(code int, msg string) {
	status := "Internal Server Error"
	if code == 404 {
		status = "Not Found"
	}
	s.writeResponse(code, status, []byte(fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", code, status)))
}

// service is the small interface every HTML page (home, connections table,
// open-port form) implements; routeService dispatches by path.
type service interface {
	Render() []byte
}

func routeService(path string, mgr *rudp.Manager) service {
	switch {
	case path == "/" || path == "/index.html":
		return homeService{}
	case path == "/connections":
		return connectionsService{mgr: mgr}
	case path == "/openport":
		return openPortService{}
	case path == "/ports":
		return portsService{}
	case path == "":
		return nil
	default:
		if _, err := os.Stat(filepath.Join(webroot, filepath.Clean("/"+path))); err != nil {
			return nil
		}
		return fileService{path: path}
	}
}
