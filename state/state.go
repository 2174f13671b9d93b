// Package state persists the provisioning record that bridges the reboot
// between the initial run and the post-login continuation.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// DefaultFileName is the state file name inside the data directory.
const DefaultFileName = "state.json"

// DefaultDir is the per-machine data directory.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "ComputerSetup")
	}
	return "/var/lib/computer-setup"
}

// DefaultPath is the default state file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), DefaultFileName)
}

// FileStore keeps one ProvisioningState as JSON, replaced atomically on
// every Save.
type FileStore struct {
	path string
	log  *slog.Logger
}

func NewFileStore(path string, log *slog.Logger) *FileStore {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &FileStore{path: path, log: log}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns ErrNoState when the file is absent and ErrCorruptState when
// it cannot be decoded or fails validation.
func (s *FileStore) Load(ctx context.Context) (*interfaces.ProvisioningState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoState, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st interfaces.ProvisioningState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCorruptState, err)
	}
	if st.Version != interfaces.StateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", interfaces.ErrCorruptState, st.Version)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save validates and writes st. A save that would move the persisted phase
// backwards fails with ErrPhaseRegression.
func (s *FileStore) Save(ctx context.Context, st *interfaces.ProvisioningState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = interfaces.StateVersion
	}
	if err := st.Validate(); err != nil {
		return err
	}

	if current, err := s.Load(ctx); err == nil {
		if !current.Phase.CanAdvanceTo(st.Phase) {
			return fmt.Errorf("%w: %s -> %s", interfaces.ErrPhaseRegression, current.Phase, st.Phase)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := common.EnsurePrivateDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	if err := common.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return err
	}

	s.log.Debug("Saved provisioning state",
		slog.String("path", s.path),
		slog.String("phase", string(st.Phase)))
	return nil
}

// Delete removes the state file. A missing file is not an error.
func (s *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := common.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}
