// Package ctrl implements the control-plane state machine: generating and
// ingesting PING, PONG, KEYX, MTUX and BAKX messages, and the per-tick
// scheduling that decides which of those to emit on each path.
package ctrl

import (
	"time"

	"github.com/opd-ai/mudcore/crypto"
	"github.com/opd-ai/mudcore/frame"
	"github.com/opd-ai/mudcore/path"
	"github.com/opd-ai/mudcore/wire"
)

// Default timer values, all in microseconds to match wire.Timestamp.
const (
	PongTimeout = wire.Timestamp(100 * time.Millisecond / time.Microsecond)
	KeyxTimeout = wire.Timestamp(60 * time.Minute / time.Microsecond)
	SendTimeout = wire.Timestamp(time.Second / time.Microsecond)
)

// Transmitter hands an encoded control packet to whatever delivers it to
// the path's remote address; the engine supplies this over its socket.
type Transmitter func(p *path.Path, packet []byte) error

// Machine owns the control-plane timers shared across all paths (MTU
// negotiation and the epoch manager's KEYX bookkeeping) and drives both
// the tick scheduler and inbound message dispatch. It carries no internal
// locking: like every other package in this tunnel, callers are expected
// to serialize access from a single engine goroutine.
type Machine struct {
	Epoch *crypto.EpochManager

	LocalMTU    int
	RemoteMTU   int
	MTUSendTime wire.Timestamp

	SendTimeout wire.Timestamp
	KeyxTimeout wire.Timestamp
	PongTimeout wire.Timestamp

	transmit Transmitter
}

// New creates a control-plane state machine bound to mgr for key-exchange
// state and transmit for delivering outgoing control packets.
func New(mgr *crypto.EpochManager, localMTU int, transmit Transmitter) *Machine {
	return &Machine{
		Epoch:       mgr,
		LocalMTU:    localMTU,
		SendTimeout: SendTimeout,
		KeyxTimeout: KeyxTimeout,
		PongTimeout: PongTimeout,
		transmit:    transmit,
	}
}

// EffectiveMTU returns the MTU the scheduler should enforce: the smaller
// of the local configuration and whatever the peer has advertised, once
// it has advertised one.
func (m *Machine) EffectiveMTU() int {
	if m.RemoteMTU == 0 {
		return m.LocalMTU
	}
	if m.RemoteMTU < m.LocalMTU {
		return m.RemoteMTU
	}
	return m.LocalMTU
}

func timestampFromTime(t time.Time) wire.Timestamp {
	if t.IsZero() {
		return 0
	}
	return wire.Timestamp(t.UnixMicro())
}

// Tick runs one scheduling pass over every path in tbl, emitting at most
// one control message per active path and at most one KEYX per inactive
// path, in the same priority order the original rotation policy used:
// KEYX over MTUX over BAKX over PING.
func (m *Machine) Tick(tbl *path.Table, now wire.Timestamp) {
	epochSend := timestampFromTime(m.Epoch.SendTime)
	epochRecv := timestampFromTime(m.Epoch.RecvTime)

	for _, p := range tbl.Paths() {
		if !p.Active {
			if m.Epoch.BadKey && wire.AbsDiff(now, epochSend) >= m.SendTimeout {
				m.sendKeyX(p, now)
				m.Epoch.SendTime = time.UnixMicro(int64(now))
				m.Epoch.BadKey = false
				epochSend = now
			}
			continue
		}

		if wire.AbsDiff(now, epochSend) >= m.SendTimeout && wire.AbsDiff(now, epochRecv) >= m.KeyxTimeout {
			m.sendKeyX(p, now)
			m.Epoch.SendTime = time.UnixMicro(int64(now))
			epochSend = now
			continue
		}

		if m.RemoteMTU == 0 && wire.AbsDiff(now, m.MTUSendTime) >= m.SendTimeout {
			m.sendMTUX(p, now)
			m.MTUSendTime = now
			continue
		}

		if p.BakLocal && !p.BakRemote && wire.AbsDiff(now, p.BakSendTime) >= m.SendTimeout {
			m.sendBAKX(p, now)
			p.BakSendTime = now
			continue
		}

		if p.SendTime == 0 {
			m.sendPing(p, now)
		}
	}
}

// Ingest updates per-path receive bookkeeping for every arriving packet,
// emits a PONG if one is due, and — if payload is non-empty — dispatches
// it to the control message handler matching its exact length.
func (m *Machine) Ingest(p *path.Path, now, sendTime wire.Timestamp, payload []byte, isControl bool) {
	hadPriorPacket := p.RecvTime != 0
	p.UpdateOnReceive(now, sendTime)

	if hadPriorPacket && p.PongDue(now, m.PongTimeout) {
		m.sendPong(p, now)
		p.PongTime = now
	}

	if !isControl {
		return
	}

	switch len(payload) {
	case pingSize:
	case pongSize:
		m.recvPong(p, now, sendTime, payload)
	case keyxSize:
		m.recvKeyX(p, now, payload)
	case mtuxSize:
		m.recvMTUX(p, now, payload)
	case bakxSize:
		m.recvBAKX(p, now, payload)
	default:
		NewLogger("Ingest").WithField("size", len(payload)).
			Debug("dropped control packet of unrecognized length")
	}
}

func (m *Machine) recvPong(p *path.Path, now, sendTime wire.Timestamp, payload []byte) {
	sdt, rdt, rst := parsePong(payload)
	p.ApplyPong(now, sendTime, sdt, rdt, rst)
}

func (m *Machine) recvKeyX(p *path.Path, now wire.Timestamp, payload []byte) {
	peer := parseKeyX(payload)

	reply, err := m.Epoch.Handshake(peer, time.UnixMicro(int64(now)))
	if reply {
		m.sendKeyX(p, now)
	}
	if err != nil {
		NewLogger("recvKeyX").WithError(err).Warn("key exchange failed")
	}
}

func (m *Machine) recvMTUX(p *path.Path, now wire.Timestamp, payload []byte) {
	m.RemoteMTU = parseMTUX(payload)
	if !p.Active {
		m.sendMTUX(p, now)
	}
}

func (m *Machine) recvBAKX(p *path.Path, now wire.Timestamp, payload []byte) {
	p.BakRemote = parseBAKX(payload)
	if !p.Active {
		// On a path this side did not configure, accepting a
		// peer-advertised backup flag demotes this side too, even if it
		// never marked the path as a backup; the echo carries that flag.
		p.BakLocal = true
		m.sendBAKX(p, now)
	}
}

func (m *Machine) sendControl(p *path.Path, now wire.Timestamp, payload []byte) {
	enc := m.Epoch.Private.Encrypt
	packet := frame.EncodeControl(enc, now, payload)
	if err := m.transmit(p, packet); err != nil {
		NewLogger("sendControl").WithError(err).Debug("failed to transmit control packet")
		return
	}
	p.SendTime = now
}

func (m *Machine) sendPing(p *path.Path, now wire.Timestamp) {
	m.sendControl(p, now, buildPing())
}

func (m *Machine) sendPong(p *path.Path, now wire.Timestamp) {
	m.sendControl(p, now, buildPong(p.SDT, p.RDT, p.RST))
}

func (m *Machine) sendKeyX(p *path.Path, now wire.Timestamp) {
	m.sendControl(p, now, buildKeyX(m.Epoch.PublicExchange()))
}

func (m *Machine) sendMTUX(p *path.Path, now wire.Timestamp) {
	m.sendControl(p, now, buildMTUX(m.LocalMTU))
}

func (m *Machine) sendBAKX(p *path.Path, now wire.Timestamp) {
	m.sendControl(p, now, buildBAKX(p.BakLocal))
}
