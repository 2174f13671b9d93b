//go:build !windows

package workstation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Unsupported is the Workstation of platforms provisioning does not run on.
// Every operation fails with interfaces.ErrUnsupportedPlatform.
type Unsupported struct{}

// New returns the Workstation of the running platform.
func New(_ *slog.Logger) interfaces.Workstation {
	return Unsupported{}
}

func (Unsupported) IsElevated() bool { return false }

func (Unsupported) RenameComputer(context.Context, string) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) EnsureLocalAdmin(context.Context, string, string) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) RemoveLocalUser(context.Context, string) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) ConfigureAutologon(context.Context, string, string) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) ClearAutologon(context.Context) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) RegisterContinuation(context.Context, string, string) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) JoinedDomain(context.Context) (string, error) {
	return "", interfaces.ErrUnsupportedPlatform
}

func (Unsupported) JoinDomain(context.Context, interfaces.DomainJoinRequest) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) Logoff(context.Context) error {
	return interfaces.ErrUnsupportedPlatform
}

func (Unsupported) Restart(context.Context, time.Duration) error {
	return interfaces.ErrUnsupportedPlatform
}
