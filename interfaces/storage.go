package interfaces

import "context"

// SecretStore holds the credential blob at rest, encrypted with a key bound
// to the local machine. Get on a missing or deleted ref returns
// ErrSecretNotFound.
type SecretStore interface {
	Put(ctx context.Context, secret []byte) (SecretRef, error)
	Get(ctx context.Context, ref SecretRef) ([]byte, error)
	Delete(ctx context.Context, ref SecretRef) error

	// Purge removes whatever secret is stored, whichever ref it carries.
	Purge(ctx context.Context) error
}

// StateStore persists the single ProvisioningState record of the machine.
// Load returns ErrNoState when nothing is persisted and ErrCorruptState when
// the record is unreadable.
type StateStore interface {
	Load(ctx context.Context) (*ProvisioningState, error)
	Save(ctx context.Context, state *ProvisioningState) error
	Delete(ctx context.Context) error
	Path() string
}

// CredentialEscrow receives a copy of the generated local admin credential.
type CredentialEscrow interface {
	Deposit(ctx context.Context, record EscrowRecord) error
	Name() string
}
