//go:build windows

package workstation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Windows implements interfaces.Workstation on the local Windows machine.
type Windows struct {
	ps     *PowerShell
	runner CommandRunner
	log    *slog.Logger
}

// New returns the Workstation of the running platform.
func New(log *slog.Logger) interfaces.Workstation {
	return NewWindows(ExecRunner{}, log)
}

func NewWindows(runner CommandRunner, log *slog.Logger) *Windows {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &Windows{ps: NewPowerShell(runner), runner: runner, log: log}
}

func (w *Windows) IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

func (w *Windows) RenameComputer(ctx context.Context, hostname string) error {
	pending, err := pendingComputerName()
	if err == nil && strings.EqualFold(pending, hostname) {
		w.log.Debug("Computer name already set", slog.String("hostname", hostname))
		return nil
	}
	if _, err := w.ps.Run(ctx, "", renameComputerScript(hostname)...); err != nil {
		return fmt.Errorf("rename computer to %s: %w", hostname, err)
	}
	return nil
}

func (w *Windows) EnsureLocalAdmin(ctx context.Context, username, password string) error {
	if _, err := w.ps.Run(ctx, password, ensureLocalAdminScript(username)...); err != nil {
		return fmt.Errorf("ensure local admin %s: %w", username, err)
	}
	return nil
}

func (w *Windows) RemoveLocalUser(ctx context.Context, username string) error {
	if _, err := w.ps.Run(ctx, "", removeLocalUserScript(username)...); err != nil {
		return fmt.Errorf("remove local user %s: %w", username, err)
	}
	return nil
}

func (w *Windows) ConfigureAutologon(_ context.Context, username, password string) error {
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, winlogonKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open winlogon key: %w", err)
	}
	defer k.Close()

	for _, v := range []struct{ name, value string }{
		{valueDefaultUserName, username},
		{valueDefaultPassword, password},
		{valueDefaultDomainName, localLogonDomain},
		{valueForceAutoLogon, "1"},
		{valueAutoAdminLogon, "1"},
	} {
		if err := k.SetStringValue(v.name, v.value); err != nil {
			return fmt.Errorf("set winlogon %s: %w", v.name, err)
		}
	}
	return nil
}

func (w *Windows) ClearAutologon(_ context.Context) error {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, winlogonKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open winlogon key: %w", err)
	}
	defer k.Close()

	for _, name := range []string{valueAutoAdminLogon, valueForceAutoLogon} {
		if err := k.SetStringValue(name, "0"); err != nil {
			return fmt.Errorf("set winlogon %s: %w", name, err)
		}
	}
	for _, name := range []string{valueDefaultPassword, valueDefaultDomainName} {
		if err := k.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("delete winlogon %s: %w", name, err)
		}
	}
	return nil
}

func (w *Windows) RegisterContinuation(_ context.Context, name, command string) error {
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, runOnceKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open RunOnce key: %w", err)
	}
	defer k.Close()

	if err := k.SetStringValue(name, command); err != nil {
		return fmt.Errorf("set RunOnce %s: %w", name, err)
	}
	return nil
}

func (w *Windows) JoinedDomain(ctx context.Context) (string, error) {
	out, err := w.ps.Run(ctx, "", joinedDomainScript()...)
	if err != nil {
		return "", fmt.Errorf("query domain membership: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (w *Windows) JoinDomain(ctx context.Context, req interfaces.DomainJoinRequest) error {
	if _, err := w.ps.Run(ctx, req.Password, joinDomainScript(req.Domain, req.Username, req.OUPath)...); err != nil {
		return fmt.Errorf("join domain %s: %w", req.Domain, err)
	}
	return nil
}

func (w *Windows) Logoff(ctx context.Context) error {
	name, args := logoffCommand()
	if out, err := w.runner.Run(ctx, nil, name, args...); err != nil {
		return fmt.Errorf("log off: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (w *Windows) Restart(ctx context.Context, delay time.Duration) error {
	name, args := restartCommand(delay)
	if out, err := w.runner.Run(ctx, nil, name, args...); err != nil {
		return fmt.Errorf("restart: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// pendingComputerName is the name the machine takes after the next reboot.
func pendingComputerName() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, computerNameKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer k.Close()

	name, _, err := k.GetStringValue("ComputerName")
	return name, err
}
