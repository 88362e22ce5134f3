// Package path implements the tunnel's path table: per-binding state for
// every (local IP, remote socket address) pair the engine has seen, latency
// estimation via exponentially weighted moving averages, and the
// weighted-round-robin bookkeeping the scheduler uses to pick an outbound
// path.
package path

import (
	"net"

	"github.com/opd-ai/mudcore/transport"
	"github.com/opd-ai/mudcore/wire"
)

// Path is a single binding between a local address and a remote peer. It
// is created either by an operator call (Active) or by the arrival of the
// first packet from a previously unseen (local IP, remote address) pair.
type Path struct {
	Active bool

	LocalAddr  net.IP
	RemoteAddr *net.UDPAddr
	Ctrl       transport.ControlBuffer

	BakLocal    bool
	BakRemote   bool
	BakSendTime wire.Timestamp

	RecvTime wire.Timestamp
	SendTime wire.Timestamp
	PongTime wire.Timestamp

	// RST is the peer's last send timestamp, as read from a packet
	// header. RDT and SDT are this side's inter-arrival and the peer's
	// inter-send EWMAs, both scaled by alpha = 1/8.
	RST wire.Timestamp
	RDT wire.Timestamp
	SDT wire.Timestamp
	seeded bool

	// Remote holds the values the peer last echoed back to us in a
	// PONG, plus the two quantities derived from them at receipt.
	Remote struct {
		RST wire.Timestamp
		RDT wire.Timestamp
		SDT wire.Timestamp
		DT  wire.Timestamp
	}

	RTT wire.Timestamp

	// Limit is the scheduler's virtual transmit-time credit for this
	// path; see the outbound path selection in Engine.selectPath in
	// package mudcore.
	Limit int64
}

const emaShift = 8 // divisor for the alpha = 1/8 EWMA below

// UpdateOnReceive folds a newly-arrived packet's timing into the path's
// EWMAs and advances its receive bookkeeping. The very first packet on a
// path leaves RDT/SDT at zero; the second seeds them without smoothing;
// every packet after that blends in with weight 1/8.
func (p *Path) UpdateOnReceive(now, sendTime wire.Timestamp) {
	if p.RecvTime != 0 {
		newRDT := wire.AbsDiff(now, p.RecvTime)
		newSDT := wire.AbsDiff(sendTime, p.RST)

		if !p.seeded {
			p.RDT = newRDT
			p.SDT = newSDT
			p.seeded = true
		} else {
			p.RDT = ewma(newRDT, p.RDT)
			p.SDT = ewma(newSDT, p.SDT)
		}
	}

	p.RST = sendTime
	p.RecvTime = now
}

func ewma(sample, prev wire.Timestamp) wire.Timestamp {
	return wire.Timestamp((uint64(sample) + (emaShift-1)*uint64(prev)) / emaShift)
}

// PongDue reports whether this path should emit a PONG: it is not a
// locally-configured backup, and at least timeout has elapsed since the
// last one was sent.
func (p *Path) PongDue(now, timeout wire.Timestamp) bool {
	if p.BakLocal {
		return false
	}
	return wire.AbsDiff(now, p.PongTime) >= timeout
}

// ApplyPong records the peer's echoed timing values from an inbound PONG
// and derives this side's view of round-trip time and peer-side delay.
func (p *Path) ApplyPong(now, sendTime, remoteSDT, remoteRDT, remoteRST wire.Timestamp) {
	p.Remote.SDT = remoteSDT
	p.Remote.RDT = remoteRDT
	p.Remote.RST = remoteRST
	p.Remote.DT = wire.AbsDiff(sendTime, remoteRST)
	p.RTT = wire.AbsDiff(now, remoteRST)
}

// Usable reports whether the path is eligible for the scheduler's
// non-backup pass: it must not be flagged as a backup by either side.
func (p *Path) Usable() bool {
	return !p.BakLocal && !p.BakRemote
}

// Recovering reports whether the path has been silent for at least
// sendTimeout, the condition under which the scheduler gives it immediate
// priority to re-establish liveness.
func (p *Path) Recovering(now, sendTimeout wire.Timestamp) bool {
	return wire.AbsDiff(now, p.RecvTime) >= sendTimeout
}
