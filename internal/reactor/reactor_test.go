package reactor

import (
	"testing"
	"time"
)

// fakePollable is a minimal Pollable used to exercise Reactor bookkeeping
// without touching real descriptors.
type fakePollable struct {
	fd           int
	closing      bool
	terminated   bool
	updateCalls  int
	pendingBytes int
}

func (f *fakePollable) FD() int { return f.fd }
func (f *fakePollable) IOMask() IOMask {
	m := Err
	if f.pendingBytes > 0 {
		m |= Out
	}
	if !f.closing {
		m |= In
	}
	return m
}
func (f *fakePollable) SleepTime() time.Duration { return DefaultTimeout }
func (f *fakePollable) Read() error               { return ErrWouldBlock }
func (f *fakePollable) Write() error {
	f.pendingBytes = 0
	return nil
}
func (f *fakePollable) Update() {
	f.updateCalls++
	if f.closing && f.pendingBytes == 0 {
		f.terminated = true
	}
}
func (f *fakePollable) InitClose()  { f.closing = true }
func (f *fakePollable) Terminate()  { f.terminated = true }

func TestRegisterDuplicateFails(t *testing.T) {
	r := &Reactor{set: make(map[int]Pollable), defaultT: DefaultTimeout}
	p := &fakePollable{fd: 5}
	if err := r.Register(p); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&fakePollable{fd: 5}); err == nil {
		t.Fatalf("expected error re-registering fd 5")
	}
}

func TestInitCloseMarksAllPollables(t *testing.T) {
	r := &Reactor{set: make(map[int]Pollable), defaultT: DefaultTimeout}
	a := &fakePollable{fd: 1}
	b := &fakePollable{fd: 2}
	r.Register(a)
	r.Register(b)
	r.InitClose()
	if !a.closing || !b.closing {
		t.Fatalf("expected both pollables marked closing")
	}
}

func TestTerminateDeregistersAll(t *testing.T) {
	r := &Reactor{set: make(map[int]Pollable), defaultT: DefaultTimeout}
	r.Register(&fakePollable{fd: 1})
	r.Register(&fakePollable{fd: 2})
	r.Terminate()
	if r.Len() != 0 {
		t.Fatalf("expected empty set after Terminate, got %d", r.Len())
	}
}
