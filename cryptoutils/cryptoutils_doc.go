// Package cryptoutils collects the cryptographic helpers used during
// provisioning.
//
// # Passwords
//
// GeneratePassword produces the local administrator password. Every class of
// character (lower, upper, digit, symbol) is represented so the result passes
// the default Windows complexity policy.
//
// # Machine-bound encryption
//
// DeriveMachineKey runs HKDF-SHA256 over a machine-unique identifier. Seal and
// Open wrap AES-256-GCM with a random 12 byte nonce prepended to the
// ciphertext:
//
//	[nonce (12 bytes)][ciphertext + tag]
//
// The secret store uses these on platforms without a native machine-scoped
// protection facility.
//
// # Escrow sealing
//
// SealForRecipients encrypts to one or more age X25519 recipients and emits an
// ASCII-armored age file, so escrowed credentials can be recovered offline
// with the matching identity (OpenWithIdentity, or the age CLI).
package cryptoutils
