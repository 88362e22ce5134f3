// Package crypto implements the tunnel's cryptographic core: Curve25519
// key exchange, keyed BLAKE2b key derivation, and dual-suite AEAD sealing.
//
// # Core Types
//
//   - [KeyPair]: Curve25519 scalar/point pair
//   - [AEADKey]: symmetric key bound to a negotiated AEAD suite
//   - [EpochManager]: the four key generations (private, current, next,
//     last) a path may decrypt under, and the handshake that advances them
//
// # Key Exchange
//
// EpochManager drives a continuous, idempotent Diffie-Hellman exchange
// rather than a one-shot handshake: either side may call Handshake at any
// time with the peer's latest advertised public value, and the exchange
// converges once both sides have observed their own identity echoed back:
//
//	mgr, _ := crypto.NewEpochManager(true)
//	mgr.SetKey(presharedKey, true)
//	needsReply, _ := mgr.Handshake(peerExchange, time.Now())
//
// # Sealing Data
//
//	key, _ := crypto.NewAEADKey(sharedKey, true)
//	sealed := key.Seal(nil, nonce, plaintext, additionalData)
//	plain, err := key.Open(nil, nonce, sealed, additionalData)
//
// # Secure Memory Handling
//
// Sensitive material should be wiped after use:
//
//	defer crypto.SecureWipe(sensitiveData)
//	defer crypto.WipeKeyPair(keyPair)
//
// [SecureWipe] overwrites the slice with zeros and keeps it alive past the
// overwrite with runtime.KeepAlive.
//
// # Deterministic Testing
//
// Handshake takes its notion of "now" as an explicit time.Time argument
// rather than calling time.Now() itself, so callers can drive the epoch
// clock from a fixed value in tests; see the wire package's TimeProvider
// for the equivalent pattern used on the packet-timestamp side.
package crypto
