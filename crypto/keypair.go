// Package crypto implements the cryptographic primitives of the tunnel core:
// X25519 key exchange, keyed BLAKE2b key derivation, and dual-suite AEAD
// sealing (AES-256-GCM and ChaCha20-Poly1305) selected per epoch.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", hex.EncodeToString(keys.Public[:]))
package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a Curve25519 scalar/point pair. The epoch manager uses one as
// its ephemeral identity for a round of key exchange and generates a fresh
// one for each new round.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var private [32]byte
	if _, err := rand.Read(private[:]); err != nil {
		return nil, err
	}

	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		ZeroBytes(private[:])
		return nil, err
	}

	kp := &KeyPair{Private: private}
	copy(kp.Public[:], public)
	return kp, nil
}

// FromSecretKey derives a key pair's public half from an existing private
// scalar, deriving the point via the same base-point multiplication used
// at generation time.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], public)
	return kp, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
