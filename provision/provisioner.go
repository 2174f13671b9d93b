package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/cryptoutils"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

const (
	// DefaultLocalAdmin is the local administrator created when none is
	// requested.
	DefaultLocalAdmin = "WorkstationAdmin"

	// ContinuationName is the RunOnce entry that resumes provisioning.
	ContinuationName = "ComputerSetupPostLogin"

	// RegistryNotes is written to the registry row on join.
	RegistryNotes = "Provisioned via computer-setup"

	// RestartDelay is how long PostLogin waits before restarting.
	RestartDelay = 10 * time.Second

	// DefaultDCWait bounds how long PostLogin waits for a domain controller
	// to become resolvable.
	DefaultDCWait = 2 * time.Minute
)

// Phase names used in PhaseError.
const (
	PhaseInitialRun = "initial-run"
	PhasePostLogin  = "post-login"
)

// PhaseError names the step of a phase that failed.
type PhaseError struct {
	Phase string
	Step  string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Phase, e.Step, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func initialRunError(step string, err error) error {
	return &PhaseError{Phase: PhaseInitialRun, Step: step, Err: err}
}

func postLoginError(step string, err error) error {
	return &PhaseError{Phase: PhasePostLogin, Step: step, Err: err}
}

// Deps are the collaborators of a Provisioner. Escrow and Locator are
// optional.
type Deps struct {
	Registry    interfaces.NameRegistry
	Secrets     interfaces.SecretStore
	State       interfaces.StateStore
	Workstation interfaces.Workstation
	Escrow      interfaces.CredentialEscrow
	Locator     interfaces.DomainControllerLocator
	Log         *slog.Logger

	// DCWait bounds the domain controller pre-flight. Zero means
	// DefaultDCWait.
	DCWait time.Duration
}

// Provisioner runs the provisioning phases.
type Provisioner struct {
	registry interfaces.NameRegistry
	secrets  interfaces.SecretStore
	state    interfaces.StateStore
	ws       interfaces.Workstation
	escrow   interfaces.CredentialEscrow
	locator  interfaces.DomainControllerLocator
	log      *slog.Logger

	dcWait      time.Duration
	dcPoll      time.Duration
	now         func() time.Time
	newPassword func() (string, error)
}

func New(deps Deps) (*Provisioner, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("provision: registry is required")
	case deps.Secrets == nil:
		return nil, errors.New("provision: secret store is required")
	case deps.State == nil:
		return nil, errors.New("provision: state store is required")
	case deps.Workstation == nil:
		return nil, errors.New("provision: workstation is required")
	}

	log := deps.Log
	if log == nil {
		log = common.DiscardLogger()
	}
	dcWait := deps.DCWait
	if dcWait <= 0 {
		dcWait = DefaultDCWait
	}

	return &Provisioner{
		registry: deps.Registry,
		secrets:  deps.Secrets,
		state:    deps.State,
		ws:       deps.Workstation,
		escrow:   deps.Escrow,
		locator:  deps.Locator,
		log:      log,
		dcWait:   dcWait,
		dcPoll:   time.Second,
		now:      time.Now,
		newPassword: func() (string, error) {
			return cryptoutils.GeneratePassword(cryptoutils.DefaultPasswordLength)
		},
	}, nil
}

// Status returns the persisted provisioning state, or interfaces.ErrNoState.
func (p *Provisioner) Status(ctx context.Context) (*interfaces.ProvisioningState, error) {
	return p.state.Load(ctx)
}

// waitForDomainController polls DNS until a domain controller answers or
// the wait budget is spent.
func (p *Provisioner) waitForDomainController(ctx context.Context, domain interfaces.DomainConfig) error {
	if p.locator == nil {
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.dcPoll
	exp.MaxInterval = 15 * p.dcPoll
	exp.MaxElapsedTime = p.dcWait

	dcs, err := backoff.RetryNotifyWithData(func() ([]string, error) {
		return p.locator.LocateDomainControllers(ctx, domain.Name, domain.DNSServer)
	}, backoff.WithContext(exp, ctx), func(err error, wait time.Duration) {
		p.log.Warn("Domain controller not reachable yet",
			slog.String("domain", domain.Name),
			slog.Duration("wait", wait),
			"err", err)
	})
	if err != nil {
		return err
	}

	p.log.Info("[+] Found domain controllers",
		slog.String("domain", domain.Name),
		slog.Any("controllers", dcs))
	return nil
}
