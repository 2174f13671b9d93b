package secrets

import (
	"fmt"

	"github.com/ruteri/workstation-provisioning/cryptoutils"
)

// Protector encrypts data so that only the local machine can decrypt it.
// entropy is bound to the ciphertext and must be presented again on
// Unprotect.
type Protector interface {
	Protect(plaintext, entropy []byte) ([]byte, error)
	Unprotect(ciphertext, entropy []byte) ([]byte, error)
	Name() string
}

const (
	machineKeySalt = "computer-setup/secret-store"
	machineKeyInfo = "aes-256-gcm/v1"
)

// MachineKeyProtector derives an AES-256-GCM key from a machine identifier
// each time it is used. The identifier is read through machineID so tests
// can substitute a fixed value.
type MachineKeyProtector struct {
	machineID func() ([]byte, error)
}

// NewMachineKeyProtector returns a protector keyed by the identifier
// machineID returns. Pass ReadMachineID for the real machine.
func NewMachineKeyProtector(machineID func() ([]byte, error)) *MachineKeyProtector {
	return &MachineKeyProtector{machineID: machineID}
}

func (p *MachineKeyProtector) key() ([]byte, error) {
	id, err := p.machineID()
	if err != nil {
		return nil, fmt.Errorf("failed to read machine identifier: %w", err)
	}
	return cryptoutils.DeriveMachineKey(id, machineKeySalt, machineKeyInfo)
}

func (p *MachineKeyProtector) Protect(plaintext, entropy []byte) ([]byte, error) {
	key, err := p.key()
	if err != nil {
		return nil, err
	}
	return cryptoutils.Seal(key, plaintext, entropy)
}

func (p *MachineKeyProtector) Unprotect(ciphertext, entropy []byte) ([]byte, error) {
	key, err := p.key()
	if err != nil {
		return nil, err
	}
	return cryptoutils.Open(key, ciphertext, entropy)
}

func (p *MachineKeyProtector) Name() string {
	return "machine-key"
}
