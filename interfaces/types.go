package interfaces

import (
	"fmt"
	"strings"
	"time"
)

// StateVersion is the current on-disk schema version of ProvisioningState.
const StateVersion = 1

// Phase is the lifecycle position of a provisioning run. Phases only move
// forward.
type Phase string

const (
	PhasePending       Phase = "Pending"
	PhaseRenamed       Phase = "Renamed"
	PhaseAwaitingLogon Phase = "AwaitingLogon"
	PhaseJoined        Phase = "Joined"
)

var phaseOrder = map[Phase]int{
	PhasePending:       0,
	PhaseRenamed:       1,
	PhaseAwaitingLogon: 2,
	PhaseJoined:        3,
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// CanAdvanceTo reports whether moving from p to next keeps the phase
// monotonic. Re-asserting the current phase is allowed.
func (p Phase) CanAdvanceTo(next Phase) bool {
	if !p.Valid() || !next.Valid() {
		return false
	}
	return phaseOrder[next] >= phaseOrder[p]
}

// Before reports whether p comes strictly before other.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// SecretRef is an opaque handle to the encrypted credential blob.
type SecretRef string

// DomainConfig is the per-domain configuration entry.
type DomainConfig struct {
	// Name is the configuration slug, also used as the DNS domain name for
	// the join.
	Name string `json:"name"`

	// RegistryID identifies the registry document (spreadsheet id).
	RegistryID string `json:"registry_id"`

	// Worksheet is the tab inside the registry document.
	Worksheet string `json:"worksheet"`

	// HostnameTemplate renders a hostname from (sequence, user).
	HostnameTemplate string `json:"hostname_template"`

	// OUPath optionally places the computer account in an organizational unit.
	OUPath string `json:"ou_path,omitempty"`

	// DNSServer optionally overrides the resolver used to locate domain
	// controllers.
	DNSServer string `json:"dns_server,omitempty"`
}

// Key returns the case-insensitive lookup key of the domain.
func (d DomainConfig) Key() string {
	return strings.ToLower(d.Name)
}

// ProvisioningState is the persisted record bridging the reboot.
type ProvisioningState struct {
	Version        int          `json:"version"`
	Domain         string       `json:"domain"`
	DomainConfig   DomainConfig `json:"domain_config"`
	AssignedUser   string       `json:"assigned_user"`
	Hostname       string       `json:"hostname"`
	Sequence       int          `json:"sequence"`
	Phase          Phase        `json:"phase"`
	SecretRef      SecretRef    `json:"secret_ref"`
	InitialUser    string       `json:"initial_user"`
	LocalAdminUser string       `json:"local_admin_user"`

	// RegistryUpdated is set once the registry row was flipped to Joined, so
	// a resumed post-login never updates the row twice.
	RegistryUpdated bool `json:"registry_updated,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields every persisted state must carry.
func (s *ProvisioningState) Validate() error {
	switch {
	case s.Domain == "":
		return fmt.Errorf("%w: missing domain", ErrCorruptState)
	case s.Hostname == "":
		return fmt.Errorf("%w: missing hostname", ErrCorruptState)
	case s.Sequence <= 0:
		return fmt.Errorf("%w: invalid sequence %d", ErrCorruptState, s.Sequence)
	case !s.Phase.Valid():
		return fmt.Errorf("%w: unknown phase %q", ErrCorruptState, s.Phase)
	}
	return nil
}

// RowStatus is the Status column of a registry row.
type RowStatus string

const (
	StatusPending RowStatus = "Pending"
	StatusJoined  RowStatus = "Joined"

	// StatusSuperseded marks a row that lost an optimistic reservation race.
	// Such rows keep their sequence for audit but never identify a machine.
	StatusSuperseded RowStatus = "Superseded"
)

// RegistryHeader is the canonical header row of a tabular registry.
var RegistryHeader = []string{"Domain", "Sequence", "Hostname", "AssignedUser", "Status", "Timestamp", "Notes"}

// RegistryRow is one row of the shared name registry.
type RegistryRow struct {
	Domain       string    `json:"domain"`
	Sequence     int       `json:"sequence"`
	Hostname     string    `json:"hostname"`
	AssignedUser string    `json:"assigned_user"`
	Status       RowStatus `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Notes        string    `json:"notes"`
}

// Reservation is the result of a successful name reservation.
type Reservation struct {
	Domain       string `json:"domain"`
	Sequence     int    `json:"sequence"`
	Hostname     string `json:"hostname"`
	AssignedUser string `json:"assigned_user"`
}

// SecretBlob is the plaintext carried across the reboot inside the secret
// store. It never appears in the state file.
type SecretBlob struct {
	LocalAdminPassword string `json:"local_admin_password"`
	DomainUsername     string `json:"domain_username"`
	DomainPassword     string `json:"domain_password"`
}

// DomainJoinRequest carries everything a domain join needs.
type DomainJoinRequest struct {
	Domain   string
	Username string
	Password string
	OUPath   string
}

// EscrowRecord is a deposited local admin credential.
type EscrowRecord struct {
	Hostname  string    `json:"hostname"`
	Domain    string    `json:"domain"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}
