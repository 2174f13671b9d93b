//go:build windows

package secrets

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// ReadMachineID returns HKLM\SOFTWARE\Microsoft\Cryptography\MachineGuid.
func ReadMachineID() ([]byte, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return nil, fmt.Errorf("failed to open cryptography key: %w", err)
	}
	defer key.Close()

	guid, _, err := key.GetStringValue("MachineGuid")
	if err != nil {
		return nil, fmt.Errorf("failed to read MachineGuid: %w", err)
	}
	return []byte(guid), nil
}
