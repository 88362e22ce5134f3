package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of an AEAD key and of the pre-shared tunnel
// key accepted by EpochManager.SetKey.
const KeySize = 32

// ErrAuthFailed is returned by AEADKey.Open when the ciphertext fails
// authentication. It never distinguishes a corrupted packet from a forged
// one, so that callers cannot use timing or error content to learn
// anything about why decryption failed.
var ErrAuthFailed = errors.New("crypto: authentication failed")

// ErrNoPrivateKey is returned by EpochManager operations that need the
// pre-shared key before SetKey has installed one.
var ErrNoPrivateKey = errors.New("crypto: no private key installed")

// AEADKey wraps a symmetric key together with the AEAD construction
// negotiated for it. The cipher.AEAD is built once at construction, the
// same up-front cost the original implementation pays in
// crypto_aead_aes256gcm_beforenm rather than re-expanding the key schedule
// on every packet.
type AEADKey struct {
	Key  [32]byte
	AES  bool
	aead cipher.AEAD
}

// NewAEADKey builds an AEADKey for key. When preferAES is true the key
// seals and opens with AES-256-GCM; otherwise it uses
// ChaCha20-Poly1305. Both constructions use a 12-byte nonce, so a caller
// can treat AEADKey.NonceSize as a suite-independent constant once the
// suite has been chosen.
func NewAEADKey(key [32]byte, preferAES bool) (*AEADKey, error) {
	var aead cipher.AEAD
	var err error

	if preferAES {
		var block cipher.Block
		block, err = aes.NewCipher(key[:])
		if err != nil {
			return nil, err
		}
		aead, err = cipher.NewGCM(block)
	} else {
		aead, err = chacha20poly1305.New(key[:])
	}
	if err != nil {
		return nil, err
	}

	return &AEADKey{Key: key, AES: preferAES, aead: aead}, nil
}

// NonceSize returns the nonce length required by Seal and Open.
func (k *AEADKey) NonceSize() int {
	return k.aead.NonceSize()
}

// Overhead returns the number of bytes Seal appends to the plaintext.
func (k *AEADKey) Overhead() int {
	return k.aead.Overhead()
}

// Seal appends the encrypted and authenticated form of plaintext to dst,
// authenticating additionalData without encrypting it.
func (k *AEADKey) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	return k.aead.Seal(dst, nonce, plaintext, additionalData)
}

// Open authenticates and decrypts ciphertext, appending the plaintext to
// dst. It returns ErrAuthFailed on any authentication failure.
func (k *AEADKey) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	out, err := k.aead.Open(dst, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return out, nil
}
