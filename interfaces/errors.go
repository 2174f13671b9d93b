package interfaces

import "errors"

// Configuration errors. Fatal, detected before any side effect.
var (
	ErrUnknownDomain   = errors.New("domain not present in configuration")
	ErrInvalidTemplate = errors.New("invalid hostname template")
	ErrInvalidHostname = errors.New("rendered hostname is not a valid computer name")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// Registry errors.
var (
	// ErrRegistryUnavailable wraps transport and server failures. Retryable.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrReservationConflict means a concurrent writer took the sequence
	// between read and append. Retryable.
	ErrReservationConflict = errors.New("registry reservation conflict")

	// ErrRowNotFound means no row matches (domain, sequence). Terminal.
	ErrRowNotFound = errors.New("registry row not found")

	// ErrPermissionDenied means the credentials cannot access the registry.
	// Terminal.
	ErrPermissionDenied = errors.New("registry permission denied")
)

// Secret store errors.
var (
	ErrSecretNotFound = errors.New("secret not found")
)

// State errors.
var (
	// ErrNoState means there is nothing to resume.
	ErrNoState = errors.New("no provisioning state")

	// ErrCorruptState means the state file exists but cannot be used.
	ErrCorruptState = errors.New("corrupt provisioning state")

	// ErrStateExists means an unresolved state blocks a new initial run.
	ErrStateExists = errors.New("unresolved provisioning state already exists")

	// ErrPhaseRegression means a transition would move the phase backwards.
	ErrPhaseRegression = errors.New("provisioning phase cannot regress")
)

// Local system errors.
var (
	ErrNotElevated         = errors.New("this command must be run from an elevated session")
	ErrUnsupportedPlatform = errors.New("operation not supported on this platform")
	ErrNoDomainController  = errors.New("no domain controller found")
)
