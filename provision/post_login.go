package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// PostLoginRequest carries the operator input of PostLogin.
type PostLoginRequest struct {
	NoRestart bool
}

// PostLogin executes the second phase. A missing or unreadable state means
// there is nothing to resume and is not an error.
func (p *Provisioner) PostLogin(ctx context.Context, req PostLoginRequest) error {
	if !p.ws.IsElevated() {
		return interfaces.ErrNotElevated
	}

	st, err := LoadPending(ctx, p.state, p.secrets, p.log)
	if err != nil {
		return postLoginError("load state", err)
	}
	if st == nil {
		return nil
	}

	log := p.log.With(
		slog.String("hostname", st.Hostname),
		slog.String("domain", st.Domain),
		slog.Int("sequence", st.Sequence))
	log.Info("[+] Resuming provisioning", slog.String("phase", string(st.Phase)))

	domain := st.DomainConfig
	if domain.Name == "" {
		domain.Name = st.Domain
	}

	log.Info("[+] Clearing auto-logon configuration...")
	if err := p.ws.ClearAutologon(ctx); err != nil {
		return postLoginError("clear autologon", err)
	}

	if st.InitialUser != "" && !strings.EqualFold(st.InitialUser, st.LocalAdminUser) {
		log.Info("[+] Removing build user...", slog.String("user", st.InitialUser))
		if err := p.ws.RemoveLocalUser(ctx, st.InitialUser); err != nil {
			return postLoginError("remove build user", err)
		}
	}

	if st.Phase.Before(interfaces.PhaseJoined) {
		if err := p.join(ctx, log, st, domain); err != nil {
			return err
		}
		st.Phase = interfaces.PhaseJoined
		st.UpdatedAt = p.now().UTC()
		if err := p.state.Save(ctx, st); err != nil {
			return postLoginError("save state", err)
		}
	}

	// Nothing reads the secret once Joined is persisted.
	if err := p.secrets.Delete(ctx, st.SecretRef); err != nil {
		return postLoginError("delete secret", err)
	}

	if !st.RegistryUpdated {
		log.Info("[+] Updating registry status...")
		if err := p.registry.MarkJoined(ctx, domain, st.Sequence, RegistryNotes); err != nil {
			return postLoginError("mark joined", err)
		}
		st.RegistryUpdated = true
		st.UpdatedAt = p.now().UTC()
		if err := p.state.Save(ctx, st); err != nil {
			return postLoginError("save state", err)
		}
	}

	log.Info("[+] Cleaning up stored state...")
	if err := p.state.Delete(ctx); err != nil {
		return postLoginError("delete state", err)
	}

	if req.NoRestart {
		log.Info("[!] Restart skipped (--no-restart)")
		return nil
	}
	log.Info(fmt.Sprintf("[!] Restarting computer in %d seconds...", int(RestartDelay.Seconds())))
	if err := p.ws.Restart(ctx, RestartDelay); err != nil {
		return postLoginError("restart", err)
	}
	return nil
}

// join brings the machine into the domain unless it already is a member.
func (p *Provisioner) join(ctx context.Context, log *slog.Logger, st *interfaces.ProvisioningState, domain interfaces.DomainConfig) error {
	current, err := p.ws.JoinedDomain(ctx)
	if err != nil {
		return postLoginError("query domain membership", err)
	}
	if strings.EqualFold(strings.TrimSuffix(current, "."), strings.TrimSuffix(domain.Name, ".")) {
		log.Info("[+] Already joined to domain, skipping join")
		return nil
	}

	raw, err := p.secrets.Get(ctx, st.SecretRef)
	if err != nil {
		return postLoginError("load secret", err)
	}
	var blob interfaces.SecretBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return postLoginError("decode secret", err)
	}

	if err := p.waitForDomainController(ctx, domain); err != nil {
		return postLoginError("locate domain controller", err)
	}

	log.Info("[+] Joining domain...", slog.String("ou", domain.OUPath))
	err = p.ws.JoinDomain(ctx, interfaces.DomainJoinRequest{
		Domain:   domain.Name,
		Username: blob.DomainUsername,
		Password: blob.DomainPassword,
		OUPath:   domain.OUPath,
	})
	if err != nil {
		return postLoginError("join domain", err)
	}
	return nil
}

// LoadPending returns the state PostLogin would resume, or nil when there is
// nothing to resume. A corrupt state also takes the stored secret with it,
// since no ref can reach it any more.
func LoadPending(ctx context.Context, states interfaces.StateStore, secrets interfaces.SecretStore, log *slog.Logger) (*interfaces.ProvisioningState, error) {
	st, err := states.Load(ctx)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, interfaces.ErrNoState):
		log.Info("[+] No pending provisioning, nothing to do")
		return nil, nil
	case errors.Is(err, interfaces.ErrCorruptState):
		log.Error("[-] Provisioning state is unreadable, nothing to resume", "err", err)
		if err := secrets.Purge(ctx); err != nil {
			log.Warn("Could not remove stored secret", "err", err)
		}
		return nil, nil
	default:
		return nil, err
	}
}
