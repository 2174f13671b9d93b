//go:build !windows

package common

import (
	"fmt"
	"os"
)

// EnsurePrivateDir creates dir if needed and limits it to its owner.
func EnsurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("failed to restrict %s: %w", dir, err)
	}
	return nil
}
