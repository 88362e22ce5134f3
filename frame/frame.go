// Package frame implements the two packet formats that share the tunnel's
// wire encoding: encrypted data packets, and authenticated-but-unencrypted
// control packets, plus the multi-epoch trial decryption data packets
// require to survive an in-flight key rotation.
package frame

import (
	"errors"

	"github.com/opd-ai/mudcore/crypto"
	"github.com/opd-ai/mudcore/wire"
)

// MacSize is the AEAD authentication tag length used by both suites this
// tunnel supports.
const MacSize = 16

// ErrTooShort is returned when a packet is too small to contain a valid
// header and tag for its class.
var ErrTooShort = errors.New("frame: packet too short")

// ErrNotControl is returned by DecodeControl when the packet's first six
// bytes are not the all-zero control sentinel.
var ErrNotControl = errors.New("frame: missing control sentinel")

// IsControl reports whether packet carries the six-byte zero sentinel
// that marks it as a control packet rather than data.
func IsControl(packet []byte) bool {
	if len(packet) < wire.U48Size {
		return false
	}
	for _, b := range packet[:wire.U48Size] {
		if b != 0 {
			return false
		}
	}
	return true
}

func nonceFrom(header []byte, size int) []byte {
	nonce := make([]byte, size)
	copy(nonce, header)
	return nonce
}

// EncodeData seals plaintext into a data packet under key. The packet's
// six-byte header carries sendTime, which doubles as the low bytes of the
// AEAD nonce and as the sole associated data authenticating the header.
func EncodeData(key *crypto.AEADKey, sendTime wire.Timestamp, plaintext []byte) []byte {
	header := make([]byte, wire.U48Size)
	wire.PutUint48(header, sendTime)

	out := make([]byte, 0, wire.U48Size+len(plaintext)+key.Overhead())
	out = append(out, header...)
	return key.Seal(out, nonceFrom(header, key.NonceSize()), plaintext, header)
}

// DecodeData authenticates and decrypts a data packet under a single key,
// without trying any other epoch. Most callers want TrialDecryptData
// instead, which tries every epoch a sender might be using.
func DecodeData(key *crypto.AEADKey, packet []byte) (plaintext []byte, sendTime wire.Timestamp, err error) {
	if len(packet) < wire.U48Size+MacSize {
		return nil, 0, ErrTooShort
	}

	header := packet[:wire.U48Size]
	sendTime = wire.Uint48(header)

	plaintext, err = key.Open(nil, nonceFrom(header, key.NonceSize()), packet[wire.U48Size:], header)
	if err != nil {
		return nil, sendTime, err
	}
	return plaintext, sendTime, nil
}

// TrialDecryptData attempts to open a data packet under the epoch
// manager's current key, then next, then last, then the long-term private
// key, matching the receive-side order in the epoch manager's rotation
// policy. A successful decryption under next promotes it to current.
func TrialDecryptData(mgr *crypto.EpochManager, packet []byte) (plaintext []byte, sendTime wire.Timestamp, err error) {
	if len(packet) < wire.U48Size+MacSize {
		return nil, 0, ErrTooShort
	}

	header := packet[:wire.U48Size]
	sendTime = wire.Uint48(header)
	nonce := nonceFrom(header, macNonceSize(mgr))
	body := packet[wire.U48Size:]

	if mgr.Current != nil {
		if pt, err := mgr.Current.Decrypt.Open(nil, nonce, body, header); err == nil {
			return pt, sendTime, nil
		}
	}

	if mgr.Next != nil {
		if pt, err := mgr.Next.Decrypt.Open(nil, nonce, body, header); err == nil {
			if promoteErr := mgr.Promote(); promoteErr != nil {
				return nil, sendTime, promoteErr
			}
			return pt, sendTime, nil
		}
	}

	if mgr.Last != nil {
		if pt, err := mgr.Last.Decrypt.Open(nil, nonce, body, header); err == nil {
			return pt, sendTime, nil
		}
	}

	if mgr.Private != nil {
		if pt, err := mgr.Private.Decrypt.Open(nil, nonce, body, header); err == nil {
			return pt, sendTime, nil
		}
	}

	return nil, sendTime, crypto.ErrAuthFailed
}

func macNonceSize(mgr *crypto.EpochManager) int {
	if mgr.Current != nil && mgr.Current.Decrypt != nil {
		return mgr.Current.Decrypt.NonceSize()
	}
	if mgr.Private != nil && mgr.Private.Decrypt != nil {
		return mgr.Private.Decrypt.NonceSize()
	}
	return 12
}

// EncodeControl builds an authenticated, unencrypted control packet: the
// six-byte zero sentinel, a six-byte send_time, payload, then a MAC
// covering all of the preceding bytes. Control packets are always sealed
// under the long-term private key so that path creation and key rotation
// cannot be forged by anyone without it.
func EncodeControl(private *crypto.AEADKey, sendTime wire.Timestamp, payload []byte) []byte {
	header := make([]byte, 2*wire.U48Size)
	wire.PutUint48(header[wire.U48Size:], sendTime)

	ad := make([]byte, 0, len(header)+len(payload))
	ad = append(ad, header...)
	ad = append(ad, payload...)

	nonce := nonceFrom(header[wire.U48Size:], private.NonceSize())
	tag := private.Seal(nil, nonce, nil, ad)

	out := make([]byte, 0, len(ad)+len(tag))
	out = append(out, ad...)
	out = append(out, tag...)
	return out
}

// DecodeControl authenticates a control packet under the long-term
// private key and returns its payload.
func DecodeControl(private *crypto.AEADKey, packet []byte) (payload []byte, sendTime wire.Timestamp, err error) {
	if !IsControl(packet) {
		return nil, 0, ErrNotControl
	}
	if len(packet) < 2*wire.U48Size+MacSize {
		return nil, 0, ErrTooShort
	}

	timeField := packet[wire.U48Size : 2*wire.U48Size]
	sendTime = wire.Uint48(timeField)

	ad := packet[:len(packet)-MacSize]
	tag := packet[len(packet)-MacSize:]
	nonce := nonceFrom(timeField, private.NonceSize())

	if _, err := private.Open(nil, nonce, tag, ad); err != nil {
		return nil, sendTime, err
	}

	return packet[2*wire.U48Size : len(packet)-MacSize], sendTime, nil
}
