package tcp

import (
	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
)

// Factory builds the right Pollable (HTTP socket, control socket, data
// socket, ...) around a freshly accepted Stream; the Listener doesn't know
// or care which kind of endpoint it is serving.
type Factory func(r *reactor.Reactor, s *Stream) reactor.Pollable

// Listener binds, listens, and on IN readiness accepts one socket per
// iteration, constructing the caller-supplied Pollable around it.
type Listener struct {
	reactor.Base

	impl    listenerImpl
	factory Factory
	re      *reactor.Reactor
	log     *flog.Logger
}

// listenerImpl hides the unix-vs-portable accept(2) mechanics, mirroring
// rawConn's split for Stream.
type listenerImpl interface {
	fd() int
	accept() (rawConn, error)
	close() error
	port() int
}

// Listen binds addr (host:port, port 0 = ephemeral) and registers the
// resulting Listener with the Reactor.
func Listen(r *reactor.Reactor, addr string, factory Factory, log *flog.Logger) (*Listener, error) {
	impl, err := newListenerImpl(addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{impl: impl, factory: factory, re: r, log: log}
	l.Base = reactor.NewBase(impl.fd(), r, reactor.DefaultTimeout, nil)
	l.Base.SetTerminateHook(func() { impl.close() })
	if err := r.Register(l); err != nil {
		impl.close()
		return nil, err
	}
	return l, nil
}

// Port reports the bound local port, useful when addr was given with :0.
func (l *Listener) Port() int { return l.impl.port() }

func (l *Listener) IOMask() reactor.IOMask {
	if l.Closing() {
		return reactor.Err
	}
	return reactor.In | reactor.Err
}

// Read accepts one socket (errors logged and swallowed so the listener
// keeps running) and hands it to the factory.
func (l *Listener) Read() error {
	raw, err := l.impl.accept()
	if err != nil {
		if err == errWouldBlock {
			return nil
		}
		l.log.Errorf("tcp: accept on listener fd %d: %v", l.FD(), err)
		return nil
	}
	stream := NewConnected(l.re, raw, reactor.DefaultTimeout)
	p := l.factory(l.re, stream)
	if err := l.re.Register(p); err != nil {
		l.log.Errorf("tcp: register accepted socket: %v", err)
		stream.Terminate()
	}
	return nil
}

func (l *Listener) Write() error { return nil }

func (l *Listener) Update() { l.Base.Update() }
