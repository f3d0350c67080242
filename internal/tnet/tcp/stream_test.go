//go:build unix

package tcp

import (
	"fmt"
	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
	"testing"
	"time"
)

func TestListenerBindsEphemeralPort(t *testing.T) {
	r, err := reactor.New("poll", flog.Default())
	if err != nil {
		t.Fatalf("new reactor: %v", err)
	}
	ln, err := Listen(r, "127.0.0.1:0", func(rr *reactor.Reactor, s *Stream) reactor.Pollable {
		return s
	}, flog.Default())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if ln.Port() == 0 {
		t.Fatalf("expected a non-zero bound port")
	}
}

func TestDialerStartsInConnecting(t *testing.T) {
	r, err := reactor.New("poll", flog.Default())
	if err != nil {
		t.Fatalf("new reactor: %v", err)
	}
	ln, err := Listen(r, "127.0.0.1:0", func(rr *reactor.Reactor, s *Stream) reactor.Pollable {
		return s
	}, flog.Default())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s, err := NewDialer(r, "tcp", fmt.Sprintf("127.0.0.1:%d", ln.Port()), 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if s.State() != Connecting {
		t.Fatalf("expected Connecting, got %v", s.State())
	}
}
