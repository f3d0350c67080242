package control

import (
	"bytes"
	"testing"
)

func TestParseFields(t *testing.T) {
	block := []byte("op=connect\nexit_address=1.2.3.4\nexit_port=1026\ndest_address=5.6.7.8\ndest_port=80\nttl=0")
	fields := parseFields(block)
	if fields["op"] != "connect" || fields["exit_port"] != "1026" || fields["ttl"] != "0" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestRenderResponsePutsCodeFirst(t *testing.T) {
	out := renderResponse(map[string]string{"code": "0", "port": "5000"})
	if !bytes.HasPrefix(out, []byte("code=0\n")) {
		t.Fatalf("expected code= line first, got %q", out)
	}
	if !bytes.HasSuffix(out, []byte("\n\n")) {
		t.Fatalf("expected response terminated by a blank line, got %q", out)
	}
}

func TestUnknownOpReturnsCodeOne(t *testing.T) {
	s := &Socket{}
	fields := parseFields([]byte("op=bogus"))
	var resp map[string]string
	switch fields["op"] {
	case "connect":
		resp = s.handleConnect(fields)
	case "statistics":
		resp = s.handleStatistics(fields)
	default:
		resp = map[string]string{"code": "1"}
	}
	if resp["code"] != "1" {
		t.Fatalf("expected code=1 for unknown op, got %+v", resp)
	}
}

func TestStatisticsUnknownInfoReturnsCodeOne(t *testing.T) {
	s := &Socket{}
	resp := s.handleStatistics(map[string]string{"info": "bogus"})
	if resp["code"] != "1" {
		t.Fatalf("expected code=1 for unknown info, got %+v", resp)
	}
}
