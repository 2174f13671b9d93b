package interfaces

import "context"

// NameRegistry is the shared registry of reserved hostnames. Implementations
// must guarantee that concurrent reservations for the same domain never yield
// the same sequence.
type NameRegistry interface {
	// ReserveName appends a Pending row holding the next free sequence for the
	// domain and returns the rendered hostname.
	ReserveName(ctx context.Context, domain DomainConfig, assignedUser string) (*Reservation, error)

	// MarkJoined flips the row identified by (domain, sequence) to Joined and
	// refreshes its timestamp. It never creates a row.
	MarkJoined(ctx context.Context, domain DomainConfig, sequence int, notes string) error
}
