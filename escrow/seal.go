package escrow

import (
	"encoding/json"
	"fmt"

	"github.com/ruteri/workstation-provisioning/cryptoutils"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// sealedExtension is appended to the hostname of sealed deposits.
const sealedExtension = ".age"

// sealRecord serializes record and encrypts it to every recipient.
func sealRecord(record interfaces.EscrowRecord, recipients []string) ([]byte, error) {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal escrow record: %w", err)
	}
	sealed, err := cryptoutils.SealForRecipients(plaintext, recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to seal escrow record: %w", err)
	}
	return sealed, nil
}

// OpenRecord decrypts a sealed deposit with an age identity.
func OpenRecord(sealed []byte, identity string) (*interfaces.EscrowRecord, error) {
	plaintext, err := cryptoutils.OpenWithIdentity(sealed, identity)
	if err != nil {
		return nil, err
	}
	var record interfaces.EscrowRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("failed to parse escrow record: %w", err)
	}
	return &record, nil
}

func objectName(record interfaces.EscrowRecord) (string, error) {
	if err := validateHostname(record.Hostname); err != nil {
		return "", err
	}
	return record.Hostname + sealedExtension, nil
}

// validateHostname keeps the hostname usable as a single path segment.
func validateHostname(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("escrow record has no hostname")
	}
	for _, r := range hostname {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return fmt.Errorf("escrow record hostname %q is not a plain computer name", hostname)
		}
	}
	return nil
}
