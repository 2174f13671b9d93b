//go:build windows

package common

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// privateDirSDDL grants full control to SYSTEM, Administrators and the
// directory owner, is inherited by files and subdirectories, and blocks ACEs
// from the parent (e.g. the Users read entry on %ProgramData%). An elevated
// process creates directories owned by Administrators.
const privateDirSDDL = "D:P(A;OICI;FA;;;SY)(A;OICI;FA;;;BA)(A;OICI;FA;;;OW)"

// EnsurePrivateDir creates dir if needed and replaces its DACL so only
// SYSTEM, Administrators and its owner can open it or anything inside it.
func EnsurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	sd, err := windows.SecurityDescriptorFromString(privateDirSDDL)
	if err != nil {
		return fmt.Errorf("failed to build security descriptor: %w", err)
	}
	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("failed to read DACL: %w", err)
	}

	err = windows.SetNamedSecurityInfo(dir, windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil)
	if err != nil {
		return fmt.Errorf("failed to restrict %s: %w", dir, err)
	}
	return nil
}
