package reactor

import "time"

// Base is an embeddable helper carrying the bookkeeping every Pollable
// needs: its descriptor, the graceful-shutdown flag, a default per-instance
// sleep time, and a back-reference to the owning Reactor so handlers can
// deregister themselves on terminate. Embedders override SleepTime/IOMask/
// Read/Write/Update as needed; Base's own Update/InitClose/Terminate are
// sane defaults for the common case (no pending output once closing).
type Base struct {
	fd        int
	closing   bool
	defaultT  time.Duration
	reactor   *Reactor
	pending   func() bool // reports true while there is still queued output
	terminate func()      // embedder hook run once, before deregistration
}

// NewBase wires a Base to its descriptor and owning Reactor. pending
// reports whether the embedder still has output queued (so Update won't
// terminate mid-drain); it may be nil if the embedder never buffers.
func NewBase(fd int, r *Reactor, defaultTimeout time.Duration, pending func() bool) Base {
	return Base{fd: fd, reactor: r, defaultT: defaultTimeout, pending: pending}
}

func (b *Base) FD() int { return b.fd }

func (b *Base) Closing() bool { return b.closing }

func (b *Base) Reactor() *Reactor { return b.reactor }

// SleepTime is the default fixed timeout; embedders with real deadlines
// (retransmit, keep-alive, TTL) override this.
func (b *Base) SleepTime() time.Duration { return b.defaultT }

// Update is the spec's default: once closing and nothing left to drain,
// terminate. Embedders with extra per-tick work call this after their own
// logic, or override it entirely.
func (b *Base) Update() {
	if b.closing && (b.pending == nil || !b.pending()) {
		b.doTerminate()
	}
}

// InitClose marks the Pollable closing; the send buffer (if any) still
// drains via Update/Write until empty.
func (b *Base) InitClose() { b.closing = true }

// Terminate hard-destroys the Pollable and deregisters it from the Reactor.
// SetTerminateHook lets the embedder run its own cleanup (closing sockets,
// notifying a paired peer) exactly once before deregistration.
func (b *Base) Terminate() { b.doTerminate() }

func (b *Base) doTerminate() {
	if b.terminate != nil {
		hook := b.terminate
		b.terminate = nil
		hook()
	}
	if b.reactor != nil {
		b.reactor.Deregister(b.fd)
	}
}

// SetTerminateHook registers the embedder's one-time cleanup, invoked the
// first time Terminate/Update-driven termination fires.
func (b *Base) SetTerminateHook(fn func()) { b.terminate = fn }
