//go:build !windows

package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePrivateDir_OwnerOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ComputerSetup")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, EnsurePrivateDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
