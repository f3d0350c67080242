package rudp

import "testing"

func TestEncodeParseRoundTrip(t *testing.T) {
	cases := []Datagram{
		{CID: 0, Flag: FlagInit, Seq: 0, Payload: []byte("Source Address:A\nSource Port:1\nDestination Address:B\nDestination Port:2\n")},
		{CID: 1, Flag: FlagAck, Seq: 7},
		{CID: 0xFFFF, Flag: FlagData, Seq: 1234, Payload: []byte("hello world")},
		{CID: 2, Flag: FlagClose, Seq: 0},
		{CID: 3, Flag: FlagKeepAlive, Seq: 0},
	}
	for _, d := range cases {
		raw, err := Encode(d)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(raw) > MaxDatagramSize {
			t.Fatalf("encoded datagram %d exceeds max size %d", len(raw), MaxDatagramSize)
		}
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got.CID != d.CID || got.Flag != d.Flag || got.Seq != d.Seq {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", got, d)
		}
		if string(got.Payload) != string(d.Payload) {
			t.Fatalf("payload mismatch: got %q, want %q", got.Payload, d.Payload)
		}
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	if _, err := Parse([]byte("00")); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for short input, got %v", err)
	}
}

func TestParseRejectsLengthMismatch(t *testing.T) {
	// claimed length (15) doesn't match the 9 actual header bytes that follow
	raw := []byte("000F" + "0000" + "0" + "0000")
	if _, err := Parse(raw); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for length mismatch, got %v", err)
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	d := Datagram{Payload: make([]byte, MaxDataLength+1)}
	if _, err := Encode(d); err == nil {
		t.Fatalf("expected error for oversize payload")
	}
}

func TestMaxDatagramSizeMatchesSpec(t *testing.T) {
	if MaxDatagramSize != 1037 {
		t.Fatalf("expected MaxDatagramSize=1037, got %d", MaxDatagramSize)
	}
}

func TestEncodeFullSizeDataFitsMaxDatagramSize(t *testing.T) {
	d := Datagram{CID: 0xFFFF, Flag: FlagData, Seq: 0xFFFF, Payload: make([]byte, MaxDataLength)}
	for i := range d.Payload {
		d.Payload[i] = byte(i)
	}
	raw, err := Encode(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != MaxDatagramSize {
		t.Fatalf("encoded full-size DATA datagram = %d bytes, want exactly MaxDatagramSize=%d", len(raw), MaxDatagramSize)
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got.Payload) != MaxDataLength || string(got.Payload) != string(d.Payload) {
		t.Fatalf("full-size payload round-trip mismatch")
	}
}
