package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// FileEscrow writes sealed records into a directory, typically a share only
// IT can read.
type FileEscrow struct {
	dir        string
	recipients []string
	log        *slog.Logger
}

// NewFileEscrow creates a file escrow in dir. The directory is created on
// first deposit.
func NewFileEscrow(dir string, recipients []string, log *slog.Logger) (*FileEscrow, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty escrow directory", interfaces.ErrInvalidConfig)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: file escrow requires escrow_recipients", interfaces.ErrInvalidConfig)
	}
	if log == nil {
		log = common.DiscardLogger()
	}
	return &FileEscrow{dir: dir, recipients: recipients, log: log}, nil
}

func (e *FileEscrow) Deposit(ctx context.Context, record interfaces.EscrowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := objectName(record)
	if err != nil {
		return err
	}
	sealed, err := sealRecord(record, e.recipients)
	if err != nil {
		return err
	}

	filePath := filepath.Join(e.dir, name)
	if err := common.WriteFileAtomic(filePath, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write escrow file: %w", err)
	}

	e.log.Debug("Deposited credential in file",
		slog.String("path", filePath),
		slog.String("hostname", record.Hostname))
	return nil
}

// Path returns the file a record for hostname is written to.
func (e *FileEscrow) Path(hostname string) string {
	return filepath.Join(e.dir, hostname+sealedExtension)
}

func (e *FileEscrow) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(e.dir))
}
