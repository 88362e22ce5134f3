package mudcore

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/mudcore/wire"
)

// Default tunable values. NewConfig sets DefaultMTU, and New also uses it
// when Config.MTU is zero; every new Engine starts with DefaultSendTimeout
// and DefaultTimeTolerance. The setters reject zero rather than restoring a
// default.
const (
	DefaultMTU = 1400
	MinMTU     = 500
	MaxMTU     = 1450

	DefaultSendTimeout   = wire.Timestamp(time.Second / time.Microsecond)
	DefaultTimeTolerance = wire.Timestamp(10 * time.Minute / time.Microsecond)
)

// Config holds the construction-time parameters for New. A zero MTU falls
// back to DefaultMTU; the address-family flags have no fallback, and New
// rejects a Config with both of them unset.
type Config struct {
	// Port is the local UDP port to bind. Zero lets the kernel pick an
	// ephemeral port.
	Port int

	// EnableV4 and EnableV6 select the wildcard address the socket binds
	// to. At least one must be set. EnableV6 binds the dual-stack "[::]"
	// address, which accepts both families even when EnableV4 is false;
	// EnableV4 alone binds IPv4 only.
	EnableV4 bool
	EnableV6 bool

	// AESPreferred advertises AES-256-GCM capability during key exchange.
	// An epoch only actually uses AES once both peers advertise it.
	AESPreferred bool

	// MTU is this side's local MTU, in bytes. New rejects a value outside
	// [MinMTU, MaxMTU]; zero selects DefaultMTU.
	MTU int

	// PresharedKey, if non-nil, seeds the tunnel's private key instead of
	// a randomly generated one.
	PresharedKey *[32]byte

	Logger       *logrus.Logger
	TimeProvider wire.TimeProvider
}

// NewConfig returns a Config with the module's defaults: dual-stack,
// ChaCha20-Poly1305 preferred, MTU 1400.
func NewConfig() *Config {
	return &Config{
		EnableV4:     true,
		EnableV6:     true,
		AESPreferred: false,
		MTU:          DefaultMTU,
	}
}
