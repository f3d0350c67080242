// Package reactor implements a single-threaded, cooperative event loop: one
// Reactor drives readiness, timers, and shutdown for every registered
// Pollable. No handler may block; every I/O call is expected to be
// non-blocking and to signal ErrWouldBlock when not ready.
package reactor

import (
	"errors"
	"time"

	"rudprelay/internal/flog"
)

// IOMask is a bit set of interest flags, mirroring the source's
// readable/writable/errored triple.
type IOMask uint8

const (
	In IOMask = 1 << iota
	Out
	Err
)

// ErrWouldBlock is returned by a Pollable's Read/Write when the underlying
// descriptor has no data/space ready; the Reactor swallows it silently.
var ErrWouldBlock = errors.New("reactor: would block")

// ErrDisconnected signals a peer disconnect (EOF, ECONNRESET); the Reactor
// converts it into a graceful Terminate of that Pollable only.
var ErrDisconnected = errors.New("reactor: peer disconnected")

// DefaultTimeout is the Reactor's own sleep ceiling when no Pollable has a
// nearer deadline (spec default: 2000ms).
const DefaultTimeout = 2000 * time.Millisecond

// Pollable is the uniform contract every endpoint (TCP stream, TCP
// listener, RUDP manager, ...) implements to participate in the Reactor.
type Pollable interface {
	FD() int
	IOMask() IOMask
	SleepTime() time.Duration
	Read() error
	Write() error
	// Update runs once per iteration before polling; it may mutate the
	// Reactor's registered set (e.g. registering a newly accepted
	// connection), so the Reactor always iterates a snapshot.
	Update()
	InitClose()
	Terminate()
}

// Reactor owns a set of Pollables keyed by file descriptor and drives them
// to completion, one synchronous iteration at a time.
type Reactor struct {
	backend  backend
	set      map[int]Pollable
	closing  bool
	log      *flog.Logger
	defaultT time.Duration
}

// New constructs a Reactor using the named backend ("poll", "select", or
// "" for the platform default).
func New(pollerType string, log *flog.Logger) (*Reactor, error) {
	b, err := newBackend(pollerType)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = flog.Default()
	}
	return &Reactor{
		backend:  b,
		set:      make(map[int]Pollable),
		log:      log,
		defaultT: DefaultTimeout,
	}, nil
}

// Register adds p to the set, keyed by its descriptor. It fails if that
// descriptor is already registered.
func (r *Reactor) Register(p Pollable) error {
	fd := p.FD()
	if _, ok := r.set[fd]; ok {
		return errors.New("reactor: fd already registered")
	}
	r.set[fd] = p
	return nil
}

// Deregister removes the Pollable with the given descriptor, if present.
func (r *Reactor) Deregister(fd int) {
	delete(r.set, fd)
}

// Len reports how many Pollables are currently registered.
func (r *Reactor) Len() int { return len(r.set) }

// InitClose signals every registered Pollable to begin a graceful shutdown.
func (r *Reactor) InitClose() {
	r.closing = true
	for _, p := range r.snapshot() {
		p.InitClose()
	}
}

// Terminate force-destroys every registered Pollable immediately.
func (r *Reactor) Terminate() {
	for fd, p := range r.snapshot() {
		p.Terminate()
		delete(r.set, fd)
	}
}

func (r *Reactor) snapshot() map[int]Pollable {
	cp := make(map[int]Pollable, len(r.set))
	for fd, p := range r.set {
		cp[fd] = p
	}
	return cp
}

// Run loops until no Pollables remain (or until closing and the set has
// drained), driving one full Reactor iteration per pass.
func (r *Reactor) Run() error {
	for len(r.set) > 0 {
		if err := r.iterate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reactor) iterate() (retErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Criticalf("reactor: fatal panic in iteration: %v", rec)
			r.Terminate()
			retErr = errors.New("reactor: fatal error, forced shutdown")
		}
	}()

	snap := r.snapshot()
	for _, p := range snap {
		p.Update()
	}

	sleep := r.defaultT
	interests := make(map[int]IOMask, len(r.set))
	for fd, p := range r.set {
		if d := p.SleepTime(); d < sleep {
			sleep = d
		}
		interests[fd] = p.IOMask()
	}

	events, err := r.backend.poll(interests, sleep)
	if err != nil {
		if errors.Is(err, errInterrupted) {
			r.InitClose()
			return nil
		}
		return err
	}

	for _, ev := range events {
		p, ok := r.set[ev.fd]
		if !ok {
			continue
		}
		r.dispatch(p, ev.mask)
	}
	return nil
}

func (r *Reactor) dispatch(p Pollable, mask IOMask) {
	if mask&Err != 0 {
		r.log.Errorf("reactor: fd %d reported error condition", p.FD())
		r.terminateOne(p)
		return
	}
	if mask&In != 0 {
		if err := r.handleIO(p, p.Read); err {
			return
		}
	}
	if mask&Out != 0 {
		r.handleIO(p, p.Write)
	}
}

// handleIO runs one I/O hook and returns true if the Pollable was
// terminated as a result (caller should not attempt further hooks on it).
func (r *Reactor) handleIO(p Pollable, fn func() error) bool {
	err := fn()
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWouldBlock) {
		return false
	}
	if errors.Is(err, ErrDisconnected) {
		r.terminateOne(p)
		return true
	}
	r.log.Errorf("reactor: fd %d handler error: %v", p.FD(), err)
	r.terminateOne(p)
	return true
}

func (r *Reactor) terminateOne(p Pollable) {
	p.Terminate()
	delete(r.set, p.FD())
}
