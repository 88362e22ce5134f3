// Package mudcore implements a multipath encrypted UDP tunnel: one
// AEAD-protected socket fanning out over several physical paths to the same
// peer, picked each send by a latency-weighted round robin, with its key
// material rotated by an in-band Diffie-Hellman exchange.
package mudcore

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/mudcore/crypto"
	"github.com/opd-ai/mudcore/ctrl"
	"github.com/opd-ai/mudcore/frame"
	"github.com/opd-ai/mudcore/path"
	"github.com/opd-ai/mudcore/transport"
	"github.com/opd-ai/mudcore/wire"
)

// Engine is the tunnel endpoint: one UDP socket, the set of paths to a
// single peer, and the crypto and control-plane state shared across all of
// them. It carries no internal locking; callers must serialize Send and
// Recv the same way the host would serialize calls into any single-threaded
// engine.
type Engine struct {
	sock  *transport.Socket
	table *path.Table
	epoch *crypto.EpochManager
	ctrl  *ctrl.Machine

	sendTimeout   wire.Timestamp
	timeTolerance wire.Timestamp
	aesPreferred  bool

	timeProvider wire.TimeProvider
	logger       *logrus.Logger

	recvBuf [wire.MaxPacketSize]byte
}

// New creates and binds a tunnel engine per cfg. A nil cfg uses NewConfig's
// defaults. The pre-shared key is generated at random unless
// cfg.PresharedKey is set.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if !cfg.EnableV4 && !cfg.EnableV6 {
		return nil, fmt.Errorf("mudcore: New: %w: no address family enabled", ErrInvalidArgument)
	}

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = DefaultMTU
	}
	if mtu < MinMTU || mtu > MaxMTU {
		return nil, fmt.Errorf("mudcore: New: %w: mtu %d outside [%d, %d]", ErrInvalidArgument, mtu, MinMTU, MaxMTU)
	}

	sock, err := transport.Bind(bindAddr(cfg))
	if err != nil {
		return nil, fmt.Errorf("mudcore: New: %w: %v", ErrSocketError, err)
	}

	epoch, err := crypto.NewEpochManager(cfg.AESPreferred)
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("mudcore: New: %w", err)
	}

	key := cfg.PresharedKey
	if key == nil {
		var generated [32]byte
		if _, err := rand.Read(generated[:]); err != nil {
			sock.Close()
			return nil, fmt.Errorf("mudcore: New: %w: %v", ErrOutOfMemory, err)
		}
		key = &generated
	}
	if err := epoch.SetKey(*key, cfg.AESPreferred); err != nil {
		sock.Close()
		return nil, fmt.Errorf("mudcore: New: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{
		table:         path.NewTable(),
		epoch:         epoch,
		sock:          sock,
		sendTimeout:   DefaultSendTimeout,
		timeTolerance: DefaultTimeTolerance,
		aesPreferred:  cfg.AESPreferred,
		timeProvider:  cfg.TimeProvider,
		logger:        logger,
	}
	e.ctrl = ctrl.New(epoch, mtu, e.transmitControl)

	logger.WithFields(logrus.Fields{
		"local_addr": sock.LocalAddr().String(),
		"mtu":        mtu,
		"component":  "Engine",
	}).Info("tunnel engine bound")

	return e, nil
}

// bindAddr picks the wildcard address transport.Bind resolves against.
// Go's "udp" network listens dual-stack on "[::]" the same way the original
// relies on IPV6_V6ONLY=0, so EnableV6 alone (with EnableV4) is enough to
// get both families; true v6-only bypassing that dual-stack default would
// need transport.Bind to request "udp6" explicitly, which it does not.
func bindAddr(cfg *Config) string {
	if cfg.EnableV6 {
		return fmt.Sprintf("[::]:%d", cfg.Port)
	}
	return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
}

func (e *Engine) now() wire.Timestamp {
	return wire.Now(e.timeProvider)
}

func (e *Engine) transmitControl(p *path.Path, packet []byte) error {
	_, err := e.sock.WriteTo(packet, p.RemoteAddr, p.Ctrl)
	return err
}

// SetKey overwrites the pre-shared key, resetting current/next/last to the
// newly derived private key.
func (e *Engine) SetKey(key [32]byte) error {
	return e.epoch.SetKey(key, e.aesPreferred)
}

// GetKey returns the tunnel's pre-shared key.
func (e *Engine) GetKey() ([32]byte, bool) {
	return e.epoch.GetKey()
}

// Peer installs an operator-configured path between localIP and remoteIP.
func (e *Engine) Peer(localIP, remoteIP string, port int, backup bool) error {
	_, err := e.table.Peer(localIP, remoteIP, port, backup)
	switch err {
	case nil:
		return nil
	case path.ErrOutOfMemory:
		return fmt.Errorf("mudcore: Peer: %w", ErrOutOfMemory)
	default:
		return fmt.Errorf("mudcore: Peer: %w", ErrInvalidArgument)
	}
}

// SetMTU sets this side's local MTU. A value outside [MinMTU, MaxMTU] is
// rejected with ErrInvalidArgument.
func (e *Engine) SetMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxMTU {
		return fmt.Errorf("mudcore: SetMTU: %w: %d outside [%d, %d]", ErrInvalidArgument, mtu, MinMTU, MaxMTU)
	}
	e.ctrl.LocalMTU = mtu
	return nil
}

// GetMTU returns the effective MTU: the smaller of the local value and
// whatever the peer has advertised, once it has advertised one.
func (e *Engine) GetMTU() int {
	return e.ctrl.EffectiveMTU()
}

// SetSendTimeout sets the interval after which a silent path is considered
// due for a control message or recovery retransmit.
func (e *Engine) SetSendTimeout(msec int) error {
	if msec <= 0 {
		return fmt.Errorf("mudcore: SetSendTimeout: %w", ErrInvalidArgument)
	}
	t := wire.Timestamp(msec) * 1000
	e.sendTimeout = t
	e.ctrl.SendTimeout = t
	return nil
}

// SetTimeTolerance sets the freshness window packets are checked against
// before any decryption is attempted.
func (e *Engine) SetTimeTolerance(sec int) error {
	if sec <= 0 {
		return fmt.Errorf("mudcore: SetTimeTolerance: %w", ErrInvalidArgument)
	}
	e.timeTolerance = wire.Timestamp(sec) * 1_000_000
	return nil
}

// FD returns the underlying socket file descriptor, for hosts that drive
// this engine from an external readiness-based event loop.
func (e *Engine) FD() (int, error) {
	return e.sock.FD()
}

// Close frees the engine's socket. Paths are released with it; there is
// nothing else to tear down.
func (e *Engine) Close() error {
	return e.sock.Close()
}

// Send runs one tick of the control-plane scheduler, then — unless data is
// empty — encrypts and transmits it on the path selected by the latency-
// weighted round robin in selectPath. It returns ErrNoPath when the scan
// leaves no non-recovering primary path and no backup path exists; this
// includes the case where the datagram already went out on one or more
// recovering paths.
func (e *Engine) Send(data []byte, tc byte) (int, error) {
	now := e.now()
	e.ctrl.Tick(e.table, now)

	if len(data) == 0 {
		return 0, nil
	}

	mtu := e.ctrl.EffectiveMTU()
	if len(data) > mtu {
		return 0, fmt.Errorf("mudcore: Send: %w: payload %d exceeds mtu %d", ErrInvalidArgument, len(data), mtu)
	}

	key := e.epoch.Current.Encrypt
	if e.epoch.UseNext && e.epoch.Next != nil {
		key = e.epoch.Next.Encrypt
	}
	packet := frame.EncodeData(key, now, data)

	target, limitNew, backup := e.selectPath(now, packet, tc)
	if target == nil {
		return 0, ErrNoPath
	}

	target.Ctrl.SetTrafficClass(tc)
	n, err := e.sock.WriteTo(packet, target.RemoteAddr, target.Ctrl)
	target.SendTime = now
	if err != nil {
		return 0, fmt.Errorf("mudcore: Send: %w: %v", ErrSocketError, err)
	}
	if !backup && n == len(packet) {
		target.Limit = limitNew
	}
	return n, nil
}

// selectPath runs the limit-based weighted round robin over every non-
// backup path, transmitting immediately on any path that has gone silent
// for sendTimeout (the "recovering" fast path) before settling on the
// single best-scoring path for the actual send. Recovering paths are sent
// on here directly, via the engine's own socket, since the scheduler may
// fire on more than one of them in a single call. The path this function
// returns, and its limitNew, are what Send should also transmit on and
// charge for the packet.
func (e *Engine) selectPath(now wire.Timestamp, packet []byte, tc byte) (best *path.Path, limitNew int64, backup bool) {
	var limitMin int64 = 1<<63 - 1
	var pathMin *path.Path

	for _, p := range e.table.Paths() {
		if !p.Usable() {
			continue
		}

		elapsed := int64(wire.AbsDiff(now, p.SendTime))
		var limit int64
		if p.Limit > elapsed {
			limit = p.Limit + int64(p.RTT)/2 - elapsed
		} else {
			limit = int64(p.RTT) / 2
		}

		if p.Recovering(now, e.sendTimeout) {
			p.Ctrl.SetTrafficClass(tc)
			if _, err := e.sock.WriteTo(packet, p.RemoteAddr, p.Ctrl); err != nil {
				e.logger.WithFields(logrus.Fields{
					"remote_addr": p.RemoteAddr.String(),
					"error":       err.Error(),
					"component":  "Engine",
				}).Debug("recovery send failed")
			}
			p.SendTime = now
			p.Limit = limit
			continue
		}

		if limit < limitMin {
			limitMin = limit
			pathMin = p
		}
	}

	if pathMin == nil {
		for _, p := range e.table.Paths() {
			if p.BakLocal {
				return p, 0, true
			}
		}
		return nil, 0, false
	}

	return pathMin, limitMin, false
}

// Recv reads one datagram and, if it passes the freshness check and
// decrypts, returns its plaintext payload written into buf. It returns
// (0, nil) for any dropped or control-plane packet, matching the original
// receive semantics of "nothing for the caller this time, no error".
func (e *Engine) Recv(buf []byte) (int, error) {
	n, src, ctrlBuf, err := e.sock.ReadFrom(e.recvBuf[:])
	if err != nil {
		return 0, fmt.Errorf("mudcore: Recv: %w: %v", ErrSocketError, err)
	}
	packet := e.recvBuf[:n]
	if len(packet) < wire.U48Size {
		return 0, nil
	}

	now := e.now()
	isControl := frame.IsControl(packet)

	var sendTime wire.Timestamp
	if isControl {
		if len(packet) < 2*wire.U48Size {
			return 0, nil
		}
		sendTime = wire.Uint48(packet[wire.U48Size:])
	} else {
		// A data packet too short to ever authenticate is malformed, not a
		// failed trial: drop it here, before any path is looked up or
		// created, rather than letting it reach TrialDecryptData and get
		// mistaken for a genuine authentication failure.
		if len(packet) < wire.U48Size+frame.MacSize {
			return 0, nil
		}
		sendTime = wire.Uint48(packet)
	}

	if wire.AbsDiff(now, sendTime) >= e.timeTolerance {
		return 0, nil
	}

	// Control packets are authenticated before a path is even looked up or
	// created: an attacker without the private key cannot make this side
	// spend a path-table slot on them, let alone update any timing state.
	var payload []byte
	if isControl {
		var err error
		payload, _, err = frame.DecodeControl(e.epoch.Private.Encrypt, packet)
		if err != nil {
			return 0, nil
		}
	}

	localIP := ctrlBuf.LocalIP
	if localIP == nil {
		return 0, nil
	}
	p := e.table.LookupOrCreate(localIP, src, isControl)
	if p == nil {
		return 0, nil
	}
	p.Ctrl = ctrlBuf

	if isControl {
		e.ctrl.Ingest(p, now, sendTime, payload, true)
		return 0, nil
	}

	plaintext, _, err := frame.TrialDecryptData(e.epoch, packet)
	e.ctrl.Ingest(p, now, sendTime, nil, false)
	if err != nil {
		e.epoch.BadKey = true
		e.logger.WithFields(logrus.Fields{
			"remote_addr": src.String(),
			"component":   "Engine",
		}).Debug("dropped data packet: authentication failed")
		return 0, nil
	}

	n = copy(buf, plaintext)
	return n, nil
}
