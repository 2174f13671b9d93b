package workstation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Operation names recorded by Recorder.
const (
	OpRenameComputer       = "RenameComputer"
	OpEnsureLocalAdmin     = "EnsureLocalAdmin"
	OpRemoveLocalUser      = "RemoveLocalUser"
	OpConfigureAutologon   = "ConfigureAutologon"
	OpClearAutologon       = "ClearAutologon"
	OpRegisterContinuation = "RegisterContinuation"
	OpJoinedDomain         = "JoinedDomain"
	OpJoinDomain           = "JoinDomain"
	OpLogoff               = "Logoff"
	OpRestart              = "Restart"
)

const redacted = "<redacted>"

// Operation is one recorded call. Passwords are redacted.
type Operation struct {
	Op   string
	Args []string
}

// Recorder is an in-memory Workstation. It logs and records every call and
// keeps just enough machine state to make repeated runs behave like the real
// thing.
type Recorder struct {
	mu  sync.Mutex
	log *slog.Logger

	Elevated      bool
	Hostname      string
	Domain        string
	Users         map[string]string
	AutologonUser string
	Continuations map[string]string
	ops           []Operation
	failures      map[string]error
}

// NewRecorder creates an elevated recorder for a workgroup machine.
func NewRecorder(log *slog.Logger) *Recorder {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &Recorder{
		log:           log,
		Elevated:      true,
		Users:         make(map[string]string),
		Continuations: make(map[string]string),
		failures:      make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (r *Recorder) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// Operations returns a copy of the recorded calls.
func (r *Recorder) Operations() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Operation(nil), r.ops...)
}

// Count returns how many times op was called.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.ops {
		if o.Op == op {
			n++
		}
	}
	return n
}

// Password returns the password last set for a local user.
func (r *Recorder) Password(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pw, ok := r.Users[strings.ToLower(username)]
	return pw, ok
}

// HasUser reports whether a local user exists.
func (r *Recorder) HasUser(username string) bool {
	_, ok := r.Password(username)
	return ok
}

func (r *Recorder) record(op string, args ...string) error {
	r.ops = append(r.ops, Operation{Op: op, Args: args})
	r.log.Info("[dry-run] "+op, slog.Any("args", args))
	return r.failures[op]
}

func (r *Recorder) IsElevated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Elevated
}

func (r *Recorder) RenameComputer(_ context.Context, hostname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpRenameComputer, hostname); err != nil {
		return err
	}
	r.Hostname = hostname
	return nil
}

func (r *Recorder) EnsureLocalAdmin(_ context.Context, username, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpEnsureLocalAdmin, username, redacted); err != nil {
		return err
	}
	r.Users[strings.ToLower(username)] = password
	return nil
}

func (r *Recorder) RemoveLocalUser(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpRemoveLocalUser, username); err != nil {
		return err
	}
	delete(r.Users, strings.ToLower(username))
	return nil
}

func (r *Recorder) ConfigureAutologon(_ context.Context, username, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpConfigureAutologon, username, redacted); err != nil {
		return err
	}
	r.AutologonUser = username
	return nil
}

func (r *Recorder) ClearAutologon(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpClearAutologon); err != nil {
		return err
	}
	r.AutologonUser = ""
	return nil
}

func (r *Recorder) RegisterContinuation(_ context.Context, name, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpRegisterContinuation, name, command); err != nil {
		return err
	}
	r.Continuations[name] = command
	return nil
}

func (r *Recorder) JoinedDomain(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpJoinedDomain); err != nil {
		return "", err
	}
	return r.Domain, nil
}

func (r *Recorder) JoinDomain(_ context.Context, req interfaces.DomainJoinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpJoinDomain, req.Domain, req.Username, redacted, req.OUPath); err != nil {
		return err
	}
	r.Domain = req.Domain
	return nil
}

func (r *Recorder) Logoff(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(OpLogoff)
}

func (r *Recorder) Restart(_ context.Context, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(OpRestart, delay.String())
}
