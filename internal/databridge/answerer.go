package databridge

import (
	"fmt"
	"time"

	"rudprelay/internal/flog"
	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
	"rudprelay/internal/tnet/tcp"
)

// WireAnswerer attaches Manager.OnNewAnswerer so that every Answerer
// Connection created from an unrecognized peer's INIT gets a matching
// DataStream: once the handshake payload names a destination, this dials
// it over TCP, and the dial's OnConnected callback drives
// Connection.ApproveDataSocket (spec.md §4.5 step 2-3, §4.6).
func WireAnswerer(r *reactor.Reactor, mgr *rudp.Manager, log *flog.Logger) {
	mgr.OnNewAnswerer = func(conn *rudp.Connection) {
		conn.OnConnectReq = func(source, dest rudp.Endpoint) {
			addr := fmt.Sprintf("%s:%d", dest.Address, dest.Port)
			stream, err := tcp.NewDialer(r, "tcp", addr, defaultDialTimeout)
			if err != nil {
				log.Errorf("databridge: dial destination %s for cid %d: %v", addr, conn.CID(), err)
				conn.InitClose()
				return
			}
			ds := NewAnswererSide(stream, conn)
			if err := r.Register(ds.Poll()); err != nil {
				log.Errorf("databridge: register destination stream: %v", err)
				stream.Terminate()
			}
		}
	}
}

const defaultDialTimeout = 30 * time.Second
