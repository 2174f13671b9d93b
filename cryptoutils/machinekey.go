package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MachineKeySize is the size of keys returned by DeriveMachineKey (AES-256).
const MachineKeySize = 32

// ErrDecryptionFailed is returned by Open when the ciphertext was not
// produced under the given key, or was tampered with.
var ErrDecryptionFailed = errors.New("decryption failed")

// DeriveMachineKey derives a symmetric key from a machine-unique identifier.
// The salt and info strings provide domain separation between callers.
func DeriveMachineKey(machineID []byte, salt, info string) ([]byte, error) {
	if len(machineID) == 0 {
		return nil, errors.New("machine identifier is empty")
	}

	key := make([]byte, MachineKeySize)
	reader := hkdf.New(sha256.New, machineID, []byte(salt), []byte(info))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive machine key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-GCM under key. The output is the random
// nonce followed by the ciphertext. additionalData is authenticated but not
// encrypted.
func Seal(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal.
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
