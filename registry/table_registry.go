package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// TableRegistry implements interfaces.NameRegistry over an append-only table
// with optimistic concurrency:
//
//  1. read all rows and pick max(sequence)+1 for the domain
//  2. append a Pending row holding that sequence
//  3. re-read; the earliest live row holding the sequence owns it
//  4. a loser marks its own row Superseded and reports
//     interfaces.ErrReservationConflict
//
// A single call makes one attempt. Wrap it with Retrying to retry conflicts.
type TableRegistry struct {
	open TableOpener
	log  *slog.Logger
	now  func() time.Time
}

func NewTableRegistry(open TableOpener, log *slog.Logger) *TableRegistry {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &TableRegistry{open: open, log: log, now: time.Now}
}

func (r *TableRegistry) ReserveName(ctx context.Context, domain interfaces.DomainConfig, assignedUser string) (*interfaces.Reservation, error) {
	table, err := r.open(ctx, domain)
	if err != nil {
		return nil, err
	}
	if err := table.EnsureHeader(ctx); err != nil {
		return nil, err
	}

	rows, err := table.Rows(ctx)
	if err != nil {
		return nil, err
	}

	seq := nextSequence(rows, domain.Name)
	hostname, err := config.RenderHostname(domain, seq, assignedUser)
	if err != nil {
		return nil, err
	}

	index, err := table.Append(ctx, interfaces.RegistryRow{
		Domain:       domain.Name,
		Sequence:     seq,
		Hostname:     hostname,
		AssignedUser: assignedUser,
		Status:       interfaces.StatusPending,
		Timestamp:    r.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	rows, err = table.Rows(ctx)
	if err != nil {
		r.log.Warn("Appended row left Pending, ownership unconfirmed",
			slog.String("domain", domain.Name),
			slog.Int("sequence", seq),
			slog.Int("row", index),
			slog.String("hostname", hostname),
			"err", err)
		return nil, err
	}

	winner, ok := owner(rows, domain.Name, seq)
	if !ok {
		r.log.Warn("Appended row missing on re-read",
			slog.String("domain", domain.Name),
			slog.Int("sequence", seq),
			slog.Int("row", index))
		return nil, fmt.Errorf("%w: appended row %d for sequence %d is missing", interfaces.ErrRegistryUnavailable, index, seq)
	}
	if winner.Index != index {
		r.log.Warn("Lost sequence race, superseding own row",
			slog.String("domain", domain.Name),
			slog.Int("sequence", seq),
			slog.Int("row", index),
			slog.Int("winner_row", winner.Index))

		notes := fmt.Sprintf("superseded by row %d", winner.Index)
		if err := table.UpdateStatus(ctx, index, interfaces.StatusSuperseded, r.now().UTC(), notes); err != nil {
			r.log.Error("Failed to supersede losing row", slog.Int("row", index), "err", err)
		}
		return nil, fmt.Errorf("%w: sequence %d of %s taken by row %d", interfaces.ErrReservationConflict, seq, domain.Name, winner.Index)
	}

	r.log.Debug("Reserved sequence",
		slog.String("domain", domain.Name),
		slog.Int("sequence", seq),
		slog.Int("row", index),
		slog.String("hostname", hostname))

	return &interfaces.Reservation{
		Domain:       domain.Name,
		Sequence:     seq,
		Hostname:     hostname,
		AssignedUser: assignedUser,
	}, nil
}

func (r *TableRegistry) MarkJoined(ctx context.Context, domain interfaces.DomainConfig, sequence int, notes string) error {
	table, err := r.open(ctx, domain)
	if err != nil {
		return err
	}

	rows, err := table.Rows(ctx)
	if err != nil {
		return err
	}

	row, ok := owner(rows, domain.Name, sequence)
	if !ok {
		return fmt.Errorf("%w: domain %s sequence %d", interfaces.ErrRowNotFound, domain.Name, sequence)
	}

	return table.UpdateStatus(ctx, row.Index, interfaces.StatusJoined, r.now().UTC(), notes)
}
