package interfaces

import (
	"context"
	"time"
)

// Workstation abstracts the local operating system operations the phases
// perform. All methods must be safe to repeat.
type Workstation interface {
	IsElevated() bool

	RenameComputer(ctx context.Context, hostname string) error

	// EnsureLocalAdmin creates the account or resets its password, and makes
	// it a member of the local Administrators group.
	EnsureLocalAdmin(ctx context.Context, username, password string) error

	// RemoveLocalUser deletes the account; a missing account is not an error.
	RemoveLocalUser(ctx context.Context, username string) error

	ConfigureAutologon(ctx context.Context, username, password string) error
	ClearAutologon(ctx context.Context) error

	// RegisterContinuation schedules command to run once at the next logon.
	RegisterContinuation(ctx context.Context, name, command string) error

	// JoinedDomain returns the domain the machine is a member of, or "" when
	// it is in a workgroup.
	JoinedDomain(ctx context.Context) (string, error)
	JoinDomain(ctx context.Context, req DomainJoinRequest) error

	Logoff(ctx context.Context) error
	Restart(ctx context.Context, delay time.Duration) error
}

// DomainControllerLocator finds domain controllers for a domain.
type DomainControllerLocator interface {
	LocateDomainControllers(ctx context.Context, domain, server string) ([]string, error)
}
