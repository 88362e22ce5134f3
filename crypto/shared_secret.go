package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret computes a shared secret between two parties using
// Elliptic Curve Diffie-Hellman on Curve25519. It is the DH step of the
// epoch handshake in EpochManager.Handshake.
func DeriveSharedSecret(peerPublicKey, privateKey [32]byte) ([32]byte, error) {
	var publicKeyCopy [32]byte
	var privateKeyCopy [32]byte
	copy(publicKeyCopy[:], peerPublicKey[:])
	copy(privateKeyCopy[:], privateKey[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], publicKeyCopy[:])
	if err != nil {
		ZeroBytes(privateKeyCopy[:])
		return [32]byte{}, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	var result [32]byte
	copy(result[:], sharedSecret)

	ZeroBytes(privateKeyCopy[:])
	ZeroBytes(sharedSecret)

	return result, nil
}
