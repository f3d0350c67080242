package databridge

import (
	"net"
	"testing"

	"rudprelay/internal/rudp"
)

func TestListOpenPortsReflectsRegistrations(t *testing.T) {
	openPorts.Flush()
	exitPeer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1026}
	dest := rudp.Endpoint{Address: "10.0.0.5", Port: 443}
	entry := ListedPort{Port: 5000, ExitPeer: exitPeer.String(), Dest: dest}
	openPorts.Set(portKey(5000), entry, 0)

	got := ListOpenPorts()
	if len(got) != 1 {
		t.Fatalf("expected 1 open port, got %d", len(got))
	}
	if got[0].Port != 5000 || got[0].Dest != dest {
		t.Fatalf("unexpected entry: %+v", got[0])
	}
}

func TestPortKeyIsStable(t *testing.T) {
	if portKey(80) != portKey(80) {
		t.Fatalf("expected portKey to be deterministic")
	}
	if portKey(80) == portKey(81) {
		t.Fatalf("expected distinct ports to produce distinct keys")
	}
}
