package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// InitialRunRequest carries the operator input of InitialRun.
type InitialRunRequest struct {
	Domain interfaces.DomainConfig

	// AssignedUser is embedded in the hostname after slugification.
	AssignedUser string

	// InitialUser is the build account removed by PostLogin.
	InitialUser string

	// LocalAdmin defaults to DefaultLocalAdmin.
	LocalAdmin string

	// LocalAdminPassword is generated when empty.
	LocalAdminPassword string

	JoinUsername string
	JoinPassword string

	// ContinuationCommand is registered to run PostLogin at the next logon.
	ContinuationCommand string
}

func (r *InitialRunRequest) validate() error {
	if r.LocalAdmin == "" {
		r.LocalAdmin = DefaultLocalAdmin
	}
	switch {
	case r.Domain.Name == "":
		return fmt.Errorf("%w: domain is required", interfaces.ErrInvalidConfig)
	case strings.TrimSpace(r.AssignedUser) == "":
		return fmt.Errorf("%w: assigned user is required", interfaces.ErrInvalidConfig)
	case strings.TrimSpace(r.InitialUser) == "":
		return fmt.Errorf("%w: initial user is required", interfaces.ErrInvalidConfig)
	case r.JoinUsername == "" || r.JoinPassword == "":
		return fmt.Errorf("%w: domain join credentials are required", interfaces.ErrInvalidConfig)
	case r.ContinuationCommand == "":
		return fmt.Errorf("%w: continuation command is required", interfaces.ErrInvalidConfig)
	}
	if _, err := config.ParseHostnameTemplate(r.Domain.HostnameTemplate); err != nil {
		return err
	}
	return nil
}

// InitialRun executes the first phase. It refuses to start while an
// unresolved state exists, except to finish an earlier InitialRun of the
// same domain that stopped after persisting the Renamed checkpoint.
func (p *Provisioner) InitialRun(ctx context.Context, req InitialRunRequest) error {
	if !p.ws.IsElevated() {
		return interfaces.ErrNotElevated
	}
	if err := req.validate(); err != nil {
		return err
	}

	existing, err := p.state.Load(ctx)
	switch {
	case err == nil:
		if existing.Phase == interfaces.PhaseRenamed && strings.EqualFold(existing.Domain, req.Domain.Name) {
			p.log.Info("[+] Resuming interrupted initial run",
				slog.String("hostname", existing.Hostname),
				slog.String("statePath", p.state.Path()))
			return p.scheduleAndLogoff(ctx, existing, req.ContinuationCommand)
		}
		return fmt.Errorf("%w: %s is %s for %s (%s)", interfaces.ErrStateExists,
			p.state.Path(), existing.Phase, existing.Hostname, existing.Domain)
	case errors.Is(err, interfaces.ErrNoState):
	default:
		return initialRunError("load state", err)
	}

	password := req.LocalAdminPassword
	if password == "" {
		if password, err = p.newPassword(); err != nil {
			return initialRunError("generate password", err)
		}
	}

	assigned := config.SlugifyUser(req.AssignedUser)
	reservation, err := p.registry.ReserveName(ctx, req.Domain, assigned)
	if err != nil {
		return initialRunError("reserve name", err)
	}
	p.log.Info(fmt.Sprintf("[+] Reserved hostname: %s (sequence %03d)", reservation.Hostname, reservation.Sequence),
		slog.String("domain", req.Domain.Name))

	p.log.Info("[+] Renaming computer...", slog.String("hostname", reservation.Hostname))
	if err := p.ws.RenameComputer(ctx, reservation.Hostname); err != nil {
		return p.abortInitialRun(ctx, "rename computer", err, reservation, "")
	}

	p.log.Info("[+] Creating local administrator account...", slog.String("user", req.LocalAdmin))
	if err := p.ws.EnsureLocalAdmin(ctx, req.LocalAdmin, password); err != nil {
		return p.abortInitialRun(ctx, "create local admin", err, reservation, "")
	}

	p.log.Info("[+] Configuring auto-logon for initial migration...")
	if err := p.ws.ConfigureAutologon(ctx, req.LocalAdmin, password); err != nil {
		return p.abortInitialRun(ctx, "configure autologon", err, reservation, "")
	}

	blob, err := json.Marshal(interfaces.SecretBlob{
		LocalAdminPassword: password,
		DomainUsername:     req.JoinUsername,
		DomainPassword:     req.JoinPassword,
	})
	if err != nil {
		return p.abortInitialRun(ctx, "encode secret", err, reservation, "")
	}
	ref, err := p.secrets.Put(ctx, blob)
	if err != nil {
		return p.abortInitialRun(ctx, "store secret", err, reservation, "")
	}

	if p.escrow != nil {
		record := interfaces.EscrowRecord{
			Hostname:  reservation.Hostname,
			Domain:    req.Domain.Name,
			Username:  req.LocalAdmin,
			Password:  password,
			Sequence:  reservation.Sequence,
			CreatedAt: p.now().UTC(),
		}
		if err := p.escrow.Deposit(ctx, record); err != nil {
			return p.abortInitialRun(ctx, "escrow credential", err, reservation, ref)
		}
		p.log.Info("[+] Escrowed local admin credential", slog.String("escrow", p.escrow.Name()))
	}

	now := p.now().UTC()
	st := &interfaces.ProvisioningState{
		Version:        interfaces.StateVersion,
		Domain:         req.Domain.Name,
		DomainConfig:   req.Domain,
		AssignedUser:   assigned,
		Hostname:       reservation.Hostname,
		Sequence:       reservation.Sequence,
		Phase:          interfaces.PhaseRenamed,
		SecretRef:      ref,
		InitialUser:    req.InitialUser,
		LocalAdminUser: req.LocalAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.state.Save(ctx, st); err != nil {
		return p.abortInitialRun(ctx, "save state", err, reservation, ref)
	}
	p.log.Info("[+] State saved", slog.String("path", p.state.Path()))

	return p.scheduleAndLogoff(ctx, st, req.ContinuationCommand)
}

// scheduleAndLogoff moves a Renamed state to AwaitingLogon. Failures here
// keep the state on disk so InitialRun can be re-run to finish.
func (p *Provisioner) scheduleAndLogoff(ctx context.Context, st *interfaces.ProvisioningState, command string) error {
	if st.Phase == interfaces.PhaseRenamed {
		p.log.Info("[+] Registering RunOnce continuation...", slog.String("name", ContinuationName))
		if err := p.ws.RegisterContinuation(ctx, ContinuationName, command); err != nil {
			return initialRunError("register continuation", err)
		}

		st.Phase = interfaces.PhaseAwaitingLogon
		st.UpdatedAt = p.now().UTC()
		if err := p.state.Save(ctx, st); err != nil {
			return initialRunError("save state", err)
		}
	}

	p.log.Info("[!] Logging off current user to continue setup...")
	if err := p.ws.Logoff(ctx); err != nil {
		return initialRunError("log off", err)
	}
	return nil
}

// abortInitialRun undoes what InitialRun persisted before failing: the
// secret and the autologon configuration. The rename and the local admin are
// left for the operator, and the reserved row stays Pending.
func (p *Provisioner) abortInitialRun(ctx context.Context, step string, cause error, reservation *interfaces.Reservation, ref interfaces.SecretRef) error {
	p.log.Error("Initial run failed, cleaning up",
		slog.String("step", step),
		slog.String("hostname", reservation.Hostname),
		slog.Int("sequence", reservation.Sequence),
		"err", cause)

	if ref != "" {
		if err := p.secrets.Delete(ctx, ref); err != nil {
			p.log.Error("Failed to delete stored secret", "err", err)
		}
	}
	if err := p.ws.ClearAutologon(ctx); err != nil {
		p.log.Error("Failed to clear autologon", "err", err)
	}
	if err := p.state.Delete(ctx); err != nil {
		p.log.Error("Failed to delete state file", "err", err)
	}

	p.log.Warn("Registry row left Pending",
		slog.String("domain", reservation.Domain),
		slog.Int("sequence", reservation.Sequence))
	return initialRunError(step, cause)
}
