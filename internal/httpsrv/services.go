package httpsrv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rudprelay/internal/databridge"
	"rudprelay/internal/rudp"
)

// homeService renders a small landing page linking to the connections
// table and the open-ports list, mirroring homeservice.py's role.
type homeService struct{}

func (homeService) Render() []byte {
	return []byte(`<html><head><title>rudprelay</title></head><body>
<h1>rudprelay</h1>
<ul>
<li><a href="/connections">Connections</a></li>
<li><a href="/ports">Open ports</a></li>
</ul>
</body></html>`)
}

// connectionsService renders the live connection table (connectionsservice.py).
type connectionsService struct {
	mgr *rudp.Manager
}

func (c connectionsService) Render() []byte {
	var b strings.Builder
	b.WriteString("<html><body><h1>Connections</h1><table border=\"1\">")
	b.WriteString("<tr><th>Peer</th><th>CID</th><th>State</th><th>Sent</th><th>Received</th></tr>")
	for _, conn := range c.mgr.Connections() {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%s</td><td>%d</td><td>%d</td></tr>",
			conn.Peer(), conn.CID(), conn.State(), conn.BytesSent(), conn.BytesReceived())
	}
	b.WriteString("</table></body></html>")
	return []byte(b.String())
}

// portsService renders the currently open DataListeners (dataportservice.py).
type portsService struct{}

func (portsService) Render() []byte {
	var b strings.Builder
	b.WriteString("<html><body><h1>Open ports</h1><table border=\"1\">")
	b.WriteString("<tr><th>Port</th><th>Exit peer</th><th>Destination</th></tr>")
	for _, p := range databridge.ListOpenPorts() {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%s:%d</td></tr>", p.Port, p.ExitPeer, p.Dest.Address, p.Dest.Port)
	}
	b.WriteString("</table></body></html>")
	return []byte(b.String())
}

// openPortService renders a static page telling the operator to send an
// op=connect request to the control port. It contains no form and opens
// no port itself; this GET-only surface has no submit handling.
type openPortService struct{}

func (openPortService) Render() []byte {
	return []byte(`<html><body><h1>Open a port</h1>
<p>Submit an <code>op=connect</code> request to the control port to open a
local port bridged to a peer relay's destination.</p>
</body></html>`)
}

// fileService serves static files out of a fixed webroot (fileservice.py);
// out-of-core per spec.md §1, kept minimal and safe against traversal.
type fileService struct {
	path string
}

const webroot = "./web"

func (f fileService) Render() []byte {
	clean := filepath.Clean("/" + f.path)
	full := filepath.Join(webroot, clean)
	data, err := os.ReadFile(full)
	if err != nil {
		return []byte("<html><body><h1>404 Not Found</h1></body></html>")
	}
	return data
}
