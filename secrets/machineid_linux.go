//go:build linux

package secrets

import (
	"bytes"
	"errors"
	"os"
)

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// ReadMachineID returns the systemd/dbus machine identifier.
func ReadMachineID() ([]byte, error) {
	var errs []error
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id := bytes.TrimSpace(data); len(id) > 0 {
			return id, nil
		}
	}
	return nil, errors.Join(errs...)
}
