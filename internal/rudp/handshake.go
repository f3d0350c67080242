package rudp

import (
	"fmt"
	"strconv"
	"strings"
)

// encodeInitPayload renders the four-line handshake payload: Source
// Address, Source Port, Destination Address, Destination Port, each
// colon-separated, per spec.md §4.5 step 1.
func encodeInitPayload(source, dest Endpoint) []byte {
	lines := []string{
		fmt.Sprintf("Source Address:%s", source.Address),
		fmt.Sprintf("Source Port:%d", source.Port),
		fmt.Sprintf("Destination Address:%s", dest.Address),
		fmt.Sprintf("Destination Port:%d", dest.Port),
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// parseInitPayload accepts both the strict 5-line form (four fields plus a
// trailing blank line) and the bare 4-line form, per spec.md's Open
// Questions note that source variants disagree on this.
func parseInitPayload(payload []byte) (source, dest Endpoint, ok bool) {
	lines := strings.Split(string(payload), "\n")
	// Drop a single trailing blank line from the strict 5-line form.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) != 4 {
		return Endpoint{}, Endpoint{}, false
	}
	fields := make(map[string]string, 4)
	for _, line := range lines {
		key, val, found := strings.Cut(line, ":")
		if !found {
			return Endpoint{}, Endpoint{}, false
		}
		fields[key] = val
	}
	sp, err := strconv.Atoi(fields["Source Port"])
	if err != nil {
		return Endpoint{}, Endpoint{}, false
	}
	dp, err := strconv.Atoi(fields["Destination Port"])
	if err != nil {
		return Endpoint{}, Endpoint{}, false
	}
	sa, saOK := fields["Source Address"]
	da, daOK := fields["Destination Address"]
	if !saOK || !daOK {
		return Endpoint{}, Endpoint{}, false
	}
	return Endpoint{Address: sa, Port: sp}, Endpoint{Address: da, Port: dp}, true
}
