package rudp

import "testing"

func TestParseInitPayloadStrictFiveLineForm(t *testing.T) {
	payload := []byte("Source Address:A\nSource Port:1\nDestination Address:B\nDestination Port:2\n")
	source, dest, ok := parseInitPayload(payload)
	if !ok {
		t.Fatalf("expected strict form to parse")
	}
	if source.Address != "A" || source.Port != 1 || dest.Address != "B" || dest.Port != 2 {
		t.Fatalf("unexpected parse result: %+v %+v", source, dest)
	}
}

func TestParseInitPayloadBareFourLineForm(t *testing.T) {
	payload := []byte("Source Address:A\nSource Port:1\nDestination Address:B\nDestination Port:2")
	source, dest, ok := parseInitPayload(payload)
	if !ok {
		t.Fatalf("expected bare 4-line form to parse")
	}
	if source.Address != "A" || dest.Port != 2 {
		t.Fatalf("unexpected parse result: %+v %+v", source, dest)
	}
}

func TestEncodeInitPayloadRoundTrips(t *testing.T) {
	source := Endpoint{Address: "10.0.0.1", Port: 5000}
	dest := Endpoint{Address: "10.0.0.2", Port: 80}
	payload := encodeInitPayload(source, dest)
	gotSource, gotDest, ok := parseInitPayload(payload)
	if !ok {
		t.Fatalf("expected encoded payload to parse")
	}
	if gotSource != source || gotDest != dest {
		t.Fatalf("round-trip mismatch: got %+v %+v, want %+v %+v", gotSource, gotDest, source, dest)
	}
}

func TestParseInitPayloadRejectsMalformed(t *testing.T) {
	if _, _, ok := parseInitPayload([]byte("garbage")); ok {
		t.Fatalf("expected malformed payload to fail")
	}
}
