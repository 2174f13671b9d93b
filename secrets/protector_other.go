//go:build !windows

package secrets

// DefaultProtector returns the platform protector.
func DefaultProtector() Protector {
	return NewMachineKeyProtector(ReadMachineID)
}
