package ctrl

import (
	"net"
	"testing"

	"github.com/opd-ai/mudcore/crypto"
	"github.com/opd-ai/mudcore/frame"
	"github.com/opd-ai/mudcore/path"
	"github.com/opd-ai/mudcore/wire"
)

type fakeLink struct {
	sent [][]byte
}

func (l *fakeLink) deliver(p *path.Path, packet []byte) error {
	l.sent = append(l.sent, packet)
	return nil
}

func newTestMachine(t *testing.T) (*Machine, *fakeLink) {
	t.Helper()
	mgr, err := crypto.NewEpochManager(false)
	if err != nil {
		t.Fatalf("NewEpochManager failed: %v", err)
	}
	var psk [32]byte
	for i := range psk {
		psk[i] = byte(i)
	}
	if err := mgr.SetKey(psk, false); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}

	link := &fakeLink{}
	m := New(mgr, 1400, link.deliver)
	return m, link
}

func newTestPath() *path.Path {
	return &path.Path{Active: true}
}

func TestTickEmitsPingOnFirstTransmit(t *testing.T) {
	m, link := newTestMachine(t)
	tbl := path.NewTable()

	pp, err := tbl.Peer("10.0.0.1", "10.0.0.2", 5000, false)
	if err != nil {
		t.Fatalf("Peer failed: %v", err)
	}

	// Stay under SendTimeout so the KEYX/MTUX/BAKX branches don't preempt
	// the "never transmitted" PING branch.
	m.Tick(tbl, wire.Timestamp(500_000))

	if len(link.sent) != 1 {
		t.Fatalf("expected exactly one control packet, got %d", len(link.sent))
	}
	if !frame.IsControl(link.sent[0]) {
		t.Error("expected the emitted packet to be a control packet")
	}
	if pp.SendTime == 0 {
		t.Error("expected SendTime to be updated after sending")
	}
	payload, _, err := frame.DecodeControl(m.Epoch.Private.Encrypt, link.sent[0])
	if err != nil {
		t.Fatalf("DecodeControl failed: %v", err)
	}
	if len(payload) != pingSize {
		t.Errorf("expected a PING-sized (empty) payload, got %d bytes", len(payload))
	}
}

func TestTickPrefersKeyXOverPing(t *testing.T) {
	m, link := newTestMachine(t)
	tbl := path.NewTable()
	if _, err := tbl.Peer("10.0.0.1", "10.0.0.2", 5000, false); err != nil {
		t.Fatalf("Peer failed: %v", err)
	}

	m.Epoch.BadKey = false
	// Force the KEYX branch: send_timeout elapsed since last KEYX send and
	// KEYX_TIMEOUT elapsed since last KEYX receive (both zero/never).
	now := wire.Timestamp(10_000_000_000)

	m.Tick(tbl, now)

	payload, _, err := frame.DecodeControl(m.Epoch.Private.Encrypt, link.sent[0])
	if err != nil {
		t.Fatalf("DecodeControl failed: %v", err)
	}
	if len(payload) != keyxSize {
		t.Errorf("expected a KEYX-sized payload (%d bytes), got %d", keyxSize, len(payload))
	}
}

func TestTickSkipsInactivePathsWithoutBadKey(t *testing.T) {
	m, link := newTestMachine(t)
	tbl := path.NewTable()
	p := tbl.LookupOrCreate(net.ParseIP("10.0.0.1"), &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 5000}, true)
	p.Active = false

	m.Tick(tbl, wire.Timestamp(1_000_000))

	if len(link.sent) != 0 {
		t.Errorf("expected no control packets for an inactive path with no bad key, got %d", len(link.sent))
	}
}

func TestTickEmitsKeyXOnBadKeyInactivePath(t *testing.T) {
	m, link := newTestMachine(t)
	tbl := path.NewTable()
	p := tbl.LookupOrCreate(net.ParseIP("10.0.0.1"), &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 5000}, true)
	p.Active = false
	m.Epoch.BadKey = true

	m.Tick(tbl, wire.Timestamp(5_000_000))

	if len(link.sent) != 1 {
		t.Fatalf("expected one KEYX packet, got %d", len(link.sent))
	}
	if m.Epoch.BadKey {
		t.Error("expected BadKey to be cleared after sending the recovery KEYX")
	}
}

func TestIngestSkipsPongOnVeryFirstPacket(t *testing.T) {
	m, link := newTestMachine(t)
	p := newTestPath()

	m.Ingest(p, wire.Timestamp(1_000_000), wire.Timestamp(500_000), nil, false)

	if p.RecvTime != 1_000_000 {
		t.Errorf("expected RecvTime to be set, got %d", p.RecvTime)
	}
	if len(link.sent) != 0 {
		t.Errorf("expected no PONG on the very first received packet, got %d packets", len(link.sent))
	}
}

func TestIngestEmitsPongOnSubsequentPacket(t *testing.T) {
	m, link := newTestMachine(t)
	p := newTestPath()

	m.Ingest(p, wire.Timestamp(1_000_000), wire.Timestamp(500_000), nil, false)
	m.Ingest(p, wire.Timestamp(1_200_000), wire.Timestamp(700_000), nil, false)

	if len(link.sent) != 1 {
		t.Fatalf("expected a PONG once the timeout elapses after a prior packet, got %d packets", len(link.sent))
	}
}

func TestIngestSkipsPongForBackupPath(t *testing.T) {
	m, link := newTestMachine(t)
	p := newTestPath()
	p.BakLocal = true

	m.Ingest(p, wire.Timestamp(1_000_000), wire.Timestamp(500_000), nil, false)
	m.Ingest(p, wire.Timestamp(1_200_000), wire.Timestamp(700_000), nil, false)

	if len(link.sent) != 0 {
		t.Errorf("expected no PONG for a local backup path, got %d packets", len(link.sent))
	}
}

func TestIngestDispatchesKeyX(t *testing.T) {
	local, _ := newTestMachine(t)
	remote, _ := newTestMachine(t)
	p := newTestPath()
	originalNext := local.Epoch.Next

	payload := buildKeyX(remote.Epoch.PublicExchange())
	local.Ingest(p, wire.Timestamp(2000), wire.Timestamp(1000), payload, true)

	if local.Epoch.Next == originalNext {
		t.Error("expected a KEYX message to derive a new Next epoch")
	}
}

func TestIngestDispatchesMTUXAndEchoesWhenInactive(t *testing.T) {
	m, link := newTestMachine(t)
	p := newTestPath()
	p.Active = false

	payload := buildMTUX(1200)
	m.Ingest(p, wire.Timestamp(1000), wire.Timestamp(500), payload, true)

	if m.RemoteMTU != 1200 {
		t.Errorf("expected RemoteMTU to be learned as 1200, got %d", m.RemoteMTU)
	}

	foundMTUX := false
	for _, pkt := range link.sent {
		if pl, _, err := frame.DecodeControl(m.Epoch.Private.Encrypt, pkt); err == nil && len(pl) == mtuxSize {
			foundMTUX = true
		}
	}
	if !foundMTUX {
		t.Error("expected an MTUX echo for an inactive path")
	}
}

func TestIngestDispatchesBAKXAndDemotesLocal(t *testing.T) {
	m, _ := newTestMachine(t)
	p := newTestPath()
	p.Active = false // ingest-discovered path: echoes and demotes

	payload := buildBAKX(true)
	m.Ingest(p, wire.Timestamp(1000), wire.Timestamp(500), payload, true)

	if !p.BakLocal {
		t.Error("expected BAKX ingest to set BakLocal on an inactive path")
	}
	if !p.BakRemote {
		t.Error("expected BakRemote to reflect the peer's advertised flag")
	}
}

func TestEffectiveMTUFallsBackToLocal(t *testing.T) {
	m, _ := newTestMachine(t)
	if got := m.EffectiveMTU(); got != m.LocalMTU {
		t.Errorf("expected EffectiveMTU to equal LocalMTU before negotiation, got %d", got)
	}

	m.RemoteMTU = 1200
	if got := m.EffectiveMTU(); got != 1200 {
		t.Errorf("expected EffectiveMTU to take the smaller remote value, got %d", got)
	}
}
