package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/workstation-provisioning/interfaces"
	"github.com/ruteri/workstation-provisioning/secrets"
	"github.com/ruteri/workstation-provisioning/state"
)

// writeSheetsConfig writes a sheets configuration whose credentials file does
// not exist, so opening the registry always fails.
func writeSheetsConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	content := `{
		"google_credentials": "` + filepath.ToSlash(filepath.Join(dir, "gone.json")) + `",
		"domains": {"nycoa": {"sheet_id": "sheet-1"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func runPostLoginCommand(t *testing.T, configPath, statePath string) error {
	t.Helper()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	return newApp().Run([]string{
		"computer-setup", "--config", configPath,
		"post-login", "--state", statePath, "--no-restart",
	})
}

func TestPostLogin_NoStateIsNoop(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, state.DefaultFileName)

	t.Run("registry unreachable", func(t *testing.T) {
		require.NoError(t, runPostLoginCommand(t, writeSheetsConfig(t, dir), statePath))
	})

	t.Run("configuration missing", func(t *testing.T) {
		require.NoError(t, runPostLoginCommand(t, filepath.Join(dir, "missing.json"), statePath))
	})
}

func TestPostLogin_CorruptStatePurgesSecret(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, state.DefaultFileName)
	secretPath := secrets.DefaultPath(statePath)

	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(secretPath, []byte("leftover"), 0600))

	require.NoError(t, runPostLoginCommand(t, writeSheetsConfig(t, dir), statePath))
	assert.NoFileExists(t, secretPath)
}

func TestPostLogin_PendingStateOpensRegistry(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, state.DefaultFileName)

	now := time.Now().UTC()
	err := state.NewFileStore(statePath, nil).Save(context.Background(), &interfaces.ProvisioningState{
		Version:   interfaces.StateVersion,
		Domain:    "nycoa",
		Hostname:  "007-johndoe",
		Sequence:  7,
		Phase:     interfaces.PhaseAwaitingLogon,
		SecretRef: "ref-1",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	err = runPostLoginCommand(t, writeSheetsConfig(t, dir), statePath)
	require.ErrorIs(t, err, interfaces.ErrInvalidConfig)
	assert.FileExists(t, statePath)
}
