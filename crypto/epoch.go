package crypto

import (
	"time"

	"golang.org/x/crypto/blake2b"
)

// PublicExchangeSize is the wire size of a key-exchange public value: a
// Curve25519 point followed by a single byte advertising AES-256-GCM
// capability for the epoch that point will seed.
const PublicExchangeSize = 33

// PublicExchange is the pair of public values carried in a KEYX control
// message: the sender's current identity, and the sender's record of the
// last identity it received from the peer.
type PublicExchange struct {
	Send [PublicExchangeSize]byte
	Recv [PublicExchangeSize]byte
}

// Point returns the Curve25519 point half of the Send value.
func (p PublicExchange) Point() [32]byte {
	var out [32]byte
	copy(out[:], p.Send[:32])
	return out
}

// DirectionalKey holds a pair of independently keyed AEAD contexts for one
// epoch: one for the packets this side seals, one for the packets it opens.
// The two keys are distinct because each is derived from a different
// ordering of the same Diffie-Hellman secret with the two peers' public
// values, so neither side ever seals and opens under the same bytes.
type DirectionalKey struct {
	Encrypt *AEADKey
	Decrypt *AEADKey
}

// EpochManager tracks the four AEAD key generations a path may decrypt
// under (private, current, next, last) and drives the Diffie-Hellman
// exchange that produces new ones. It has no internal locking: callers on
// the same tunnel engine are expected to serialize access, matching the
// engine's single-threaded tick loop.
type EpochManager struct {
	kp         *KeyPair
	localSend  [PublicExchangeSize]byte
	localRecv  [PublicExchangeSize]byte
	aesCapable bool

	Private *DirectionalKey
	Current *DirectionalKey
	Next    *DirectionalKey
	Last    *DirectionalKey

	// UseNext is set once a handshake round confirms the peer has adopted
	// the same Next generation this side derived, meaning Next should be
	// preferred for new outbound packets ahead of Current.
	UseNext bool

	// BadKey is set when a Diffie-Hellman step fails (e.g. the peer
	// supplied a low-order point) and, by the engine, when a data packet
	// fails authentication under every epoch. A successful Handshake
	// clears it, as does the control plane once it has sent a recovery
	// KEYX.
	BadKey bool

	SendTime time.Time
	RecvTime time.Time
}

// NewEpochManager creates a manager with a fresh ephemeral identity.
// aesCapable advertises whether this side supports AES-256-GCM for the
// epochs it seeds; a peer that also advertises it gets an AES epoch,
// otherwise the epoch falls back to ChaCha20-Poly1305.
func NewEpochManager(aesCapable bool) (*EpochManager, error) {
	m := &EpochManager{aesCapable: aesCapable}
	if err := m.resetLocal(); err != nil {
		return nil, err
	}
	return m, nil
}

// resetLocal generates a new ephemeral Curve25519 key pair and clears the
// record of what the peer has echoed back, the same reset mud_keyx_init
// performs before a fresh round of key exchange.
func (m *EpochManager) resetLocal() error {
	kp, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	m.kp = kp

	var send [PublicExchangeSize]byte
	copy(send[:32], kp.Public[:])
	if m.aesCapable {
		send[32] = 1
	}
	m.localSend = send
	m.localRecv = [PublicExchangeSize]byte{}
	return nil
}

// PublicExchange returns the value to advertise in the next outgoing KEYX
// control message.
func (m *EpochManager) PublicExchange() PublicExchange {
	return PublicExchange{Send: m.localSend, Recv: m.localRecv}
}

// SetKey installs the tunnel's pre-shared symmetric key. It seeds Private,
// Current, Next and Last with the same AEAD context, matching mud_set_key:
// all four generations start out equal to the private key until the first
// successful handshake produces a distinct Next.
func (m *EpochManager) SetKey(key [32]byte, preferAES bool) error {
	enc, err := NewAEADKey(key, preferAES)
	if err != nil {
		return err
	}
	dec, err := NewAEADKey(key, preferAES)
	if err != nil {
		return err
	}
	dk := &DirectionalKey{Encrypt: enc, Decrypt: dec}
	m.Private = dk
	m.Current = dk
	m.Next = dk
	m.Last = dk
	return nil
}

// GetKey returns the tunnel's pre-shared symmetric key.
func (m *EpochManager) GetKey() ([32]byte, bool) {
	if m.Private == nil || m.Private.Encrypt == nil {
		return [32]byte{}, false
	}
	return m.Private.Encrypt.Key, true
}

// Rotate discards this side's ephemeral identity and generates a new one,
// to be announced in a fresh KEYX round, and returns the new value to
// advertise. It leaves the key generations themselves untouched.
func (m *EpochManager) Rotate() (PublicExchange, error) {
	if err := m.resetLocal(); err != nil {
		return PublicExchange{}, err
	}
	return m.PublicExchange(), nil
}

// Handshake processes a peer's KEYX public exchange value and derives the
// Next epoch's directional keys. It returns true when this side must send
// its own KEYX in reply because the peer has not yet echoed this side's
// current identity back (the two sides have not converged); it returns
// false once convergence is reached, at which point UseNext is set so the
// caller starts preferring Next for new outbound traffic.
func (m *EpochManager) Handshake(peer PublicExchange, now time.Time) (reply bool, err error) {
	notSynced := peer.Recv != m.localSend
	mySend := m.localSend

	m.localRecv = peer.Send
	m.UseNext = !notSynced

	secret, dhErr := DeriveSharedSecret(peer.Point(), m.kp.Private)
	if dhErr != nil {
		m.BadKey = true
		NewLogger("Handshake").WithError(dhErr, "dh_failure", "handshake").
			Warn("rejecting peer key exchange value")
		return notSynced, dhErr
	}
	defer ZeroBytes(secret[:])

	sendCtx := make([]byte, 0, 32+2*PublicExchangeSize)
	sendCtx = append(sendCtx, secret[:]...)
	sendCtx = append(sendCtx, mySend[:]...)
	sendCtx = append(sendCtx, peer.Send[:]...)

	recvCtx := make([]byte, 0, 32+2*PublicExchangeSize)
	recvCtx = append(recvCtx, secret[:]...)
	recvCtx = append(recvCtx, peer.Send[:]...)
	recvCtx = append(recvCtx, mySend[:]...)

	privKey, ok := m.GetKey()
	if !ok {
		return false, ErrNoPrivateKey
	}

	encKey, err := deriveEpochKey(privKey, sendCtx)
	if err != nil {
		return false, err
	}
	decKey, err := deriveEpochKey(privKey, recvCtx)
	if err != nil {
		return false, err
	}

	useAES := peer.Send[32] == 1 && mySend[32] == 1

	enc, err := NewAEADKey(encKey, useAES)
	if err != nil {
		return false, err
	}
	dec, err := NewAEADKey(decKey, useAES)
	if err != nil {
		return false, err
	}

	m.Next = &DirectionalKey{Encrypt: enc, Decrypt: dec}
	m.BadKey = false
	m.RecvTime = now

	return notSynced, nil
}

// Promote advances Next to Current on the first packet successfully opened
// under it, retiring the old Current to Last. The generation Last held
// until now is dropped and its key bytes are wiped immediately (unless it
// is the private key), since nothing opens under it again once it leaves
// Last. It does not touch SendTime or RecvTime: those track only
// explicit KEYX traffic, not the rotation a successful decrypt triggers.
func (m *EpochManager) Promote() error {
	if m.Last != nil && m.Last != m.Private {
		wipeDirectionalKey(m.Last)
	}
	m.Last = m.Current
	m.Current = m.Next
	m.UseNext = false
	NewLogger("Promote").Debug("promoted next epoch to current")
	return m.resetLocal()
}

func wipeDirectionalKey(dk *DirectionalKey) {
	if dk == nil {
		return
	}
	if dk.Encrypt != nil {
		ZeroBytes(dk.Encrypt.Key[:])
	}
	if dk.Decrypt != nil {
		ZeroBytes(dk.Decrypt.Key[:])
	}
}

// deriveEpochKey computes a keyed BLAKE2b-256 digest of data under key,
// the same primitive crypto_generichash provides in the original
// implementation this exchange is wire-compatible with. HKDF is
// deliberately not used here: it would produce different bytes for the
// same inputs and break interoperability with that wire format.
func deriveEpochKey(key [32]byte, data []byte) ([32]byte, error) {
	h, err := blake2b.New256(key[:])
	if err != nil {
		return [32]byte{}, err
	}
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
