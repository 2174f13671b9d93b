package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// MultiEscrow deposits into every target. Deposit fails if any target fails;
// the targets that succeeded keep their copy.
type MultiEscrow struct {
	targets []interfaces.CredentialEscrow
	log     *slog.Logger
}

func NewMultiEscrow(targets []interfaces.CredentialEscrow, log *slog.Logger) *MultiEscrow {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &MultiEscrow{targets: targets, log: log}
}

func (m *MultiEscrow) Deposit(ctx context.Context, record interfaces.EscrowRecord) error {
	start := time.Now()
	var errs []error

	for _, target := range m.targets {
		if err := target.Deposit(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.Name(), err))
			m.log.Warn("Escrow deposit failed",
				slog.String("target", target.Name()),
				slog.String("hostname", record.Hostname),
				"err", err)
			continue
		}
		m.log.Info("Escrowed local admin credential",
			slog.String("target", target.Name()),
			slog.String("hostname", record.Hostname))
	}

	if len(errs) > 0 {
		return fmt.Errorf("escrow failed for %d of %d targets: %w", len(errs), len(m.targets), errors.Join(errs...))
	}

	m.log.Debug("Escrow complete",
		slog.Int("targets", len(m.targets)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (m *MultiEscrow) Name() string {
	return "multi-escrow"
}

// Len returns the number of targets.
func (m *MultiEscrow) Len() int {
	return len(m.targets)
}
