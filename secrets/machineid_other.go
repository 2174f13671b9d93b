//go:build !linux && !windows

package secrets

import (
	"fmt"
	"runtime"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// ReadMachineID is not implemented on this platform.
func ReadMachineID() ([]byte, error) {
	return nil, fmt.Errorf("%w: machine identifier on %s", interfaces.ErrUnsupportedPlatform, runtime.GOOS)
}
