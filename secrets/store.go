package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// DefaultFileName is the secret file name inside the state directory.
const DefaultFileName = "secret.bin"

const fileVersion = 1

type secretFile struct {
	Version   int                  `json:"version"`
	Ref       interfaces.SecretRef `json:"ref"`
	Protector string               `json:"protector"`
	Blob      []byte               `json:"blob"`
	CreatedAt time.Time            `json:"created_at"`
}

// FileStore is a single-file SecretStore. Put replaces whatever secret the
// file held before; a machine has at most one provisioning run in flight.
type FileStore struct {
	path      string
	protector Protector
	log       *slog.Logger
}

// NewFileStore returns a store writing to path. A nil protector selects
// DefaultProtector.
func NewFileStore(path string, protector Protector, log *slog.Logger) *FileStore {
	if protector == nil {
		protector = DefaultProtector()
	}
	if log == nil {
		log = common.DiscardLogger()
	}
	return &FileStore{path: path, protector: protector, log: log}
}

// Path returns the location of the secret file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Put(ctx context.Context, secret []byte) (interfaces.SecretRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := interfaces.SecretRef(uuid.NewString())
	blob, err := s.protector.Protect(secret, []byte(ref))
	if err != nil {
		return "", fmt.Errorf("failed to protect secret: %w", err)
	}

	data, err := json.Marshal(secretFile{
		Version:   fileVersion,
		Ref:       ref,
		Protector: s.protector.Name(),
		Blob:      blob,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode secret file: %w", err)
	}

	if err := common.EnsurePrivateDir(filepath.Dir(s.path)); err != nil {
		return "", err
	}
	if err := common.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return "", err
	}

	s.log.Debug("Stored secret", slog.String("path", s.path), slog.String("protector", s.protector.Name()))
	return ref, nil
}

func (s *FileStore) Get(ctx context.Context, ref interfaces.SecretRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	if file.Ref != ref {
		return nil, fmt.Errorf("%w: ref %s", interfaces.ErrSecretNotFound, ref)
	}

	plaintext, err := s.protector.Unprotect(file.Blob, []byte(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to unprotect secret: %w", err)
	}
	return plaintext, nil
}

// Delete removes the secret. A missing file is not an error. A file holding
// a different ref is left in place.
func (s *FileStore) Delete(ctx context.Context, ref interfaces.SecretRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := s.read()
	switch {
	case errors.Is(err, interfaces.ErrSecretNotFound):
		return nil
	case err != nil:
		// Unreadable content is worthless; remove it.
		s.log.Warn("Removing unreadable secret file", slog.String("path", s.path), "err", err)
	case file.Ref != ref:
		s.log.Warn("Secret file holds a different ref, leaving it in place",
			slog.String("path", s.path), slog.String("ref", string(ref)))
		return nil
	}

	if err := common.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("failed to delete secret file: %w", err)
	}
	s.log.Debug("Deleted secret", slog.String("path", s.path))
	return nil
}

// Purge removes the secret file without checking its ref. Used when the
// state that held the ref is gone or unreadable.
func (s *FileStore) Purge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := common.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("failed to purge secret file: %w", err)
	}
	s.log.Debug("Purged secret file", slog.String("path", s.path))
	return nil
}

func (s *FileStore) read() (*secretFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSecretNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	var file secretFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode secret file %s: %w", s.path, err)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("unsupported secret file version %d", file.Version)
	}
	return &file, nil
}

// DefaultPath returns the secret file location next to the state file.
func DefaultPath(statePath string) string {
	return filepath.Join(filepath.Dir(statePath), DefaultFileName)
}
