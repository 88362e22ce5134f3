package path

import (
	"errors"
	"net"

	"github.com/opd-ai/mudcore/transport"
)

// ErrInvalidArgument is returned for malformed operator input: an
// unparseable IP literal, a zero port, or a family mismatch between the
// local and remote addresses.
var ErrInvalidArgument = errors.New("path: invalid argument")

// ErrOutOfMemory is returned when a new path cannot be allocated.
var ErrOutOfMemory = errors.New("path: allocation failed")

// Table is the ordered collection of paths the engine knows about.
// Iteration order is insertion order and is never reshuffled, so the
// scheduler's fairness guarantees hold across ingest.
type Table struct {
	paths []*Path
}

// NewTable creates an empty path table.
func NewTable() *Table {
	return &Table{}
}

// Paths returns the table's entries in insertion order. Callers must not
// retain the slice across a call that may append to the table.
func (t *Table) Paths() []*Path {
	return t.paths
}

// LookupOrCreate returns the path bound to (localIP, remoteAddr),
// normalizing both through transport.UnmapV4 first. If none exists and
// create is true, a new path is appended and returned, provided the two
// addresses share an address family; otherwise it returns nil.
func (t *Table) LookupOrCreate(localIP net.IP, remoteAddr *net.UDPAddr, create bool) *Path {
	localIP = transport.UnmapV4(localIP)
	normalized := &net.UDPAddr{
		IP:   transport.UnmapV4(remoteAddr.IP),
		Port: remoteAddr.Port,
		Zone: remoteAddr.Zone,
	}

	for _, p := range t.paths {
		if transport.IPEqual(p.LocalAddr, localIP) && transport.AddrEqual(p.RemoteAddr, normalized) {
			return p
		}
	}

	if !create {
		return nil
	}
	if (localIP.To4() == nil) != (normalized.IP.To4() == nil) {
		return nil
	}

	p := &Path{
		LocalAddr:  localIP,
		RemoteAddr: normalized,
	}
	p.Ctrl.LocalIP = localIP
	t.paths = append(t.paths, p)
	return p
}

// Peer installs an operator-configured path, parsing localIPStr and
// remoteIPStr as IP literals only; DNS resolution is the host's
// responsibility, not this table's.
func (t *Table) Peer(localIPStr, remoteIPStr string, port int, backup bool) (*Path, error) {
	if port <= 0 || port > 65535 {
		return nil, ErrInvalidArgument
	}

	localIP := net.ParseIP(localIPStr)
	remoteIP := net.ParseIP(remoteIPStr)
	if localIP == nil || remoteIP == nil {
		return nil, ErrInvalidArgument
	}

	remoteAddr := &net.UDPAddr{IP: remoteIP, Port: port}

	p := t.LookupOrCreate(localIP, remoteAddr, true)
	if p == nil {
		if (localIP.To4() == nil) != (remoteIP.To4() == nil) {
			return nil, ErrInvalidArgument
		}
		return nil, ErrOutOfMemory
	}

	p.Active = true
	p.BakLocal = backup
	return p, nil
}
