package provision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/workstation-provisioning/escrow"
	"github.com/ruteri/workstation-provisioning/interfaces"
	"github.com/ruteri/workstation-provisioning/registry"
	"github.com/ruteri/workstation-provisioning/secrets"
	"github.com/ruteri/workstation-provisioning/state"
	"github.com/ruteri/workstation-provisioning/workstation"
)

const continuation = `"C:\Program Files\computer-setup\computer-setup.exe" post-login --state "C:\ProgramData\ComputerSetup\state.json"`

var testDomain = interfaces.DomainConfig{
	Name:             "nycoa",
	RegistryID:       "sheet-1",
	Worksheet:        "Devices",
	HostnameTemplate: "{seq:03d}-{user}",
	OUPath:           "OU=Laptops,DC=nycoa,DC=local",
}

// countingRegistry counts MarkJoined calls and can fail the first ones.
type countingRegistry struct {
	interfaces.NameRegistry

	mu              sync.Mutex
	reserveCalls    int
	markJoinedCalls int
	markJoinedErrs  []error
}

func (c *countingRegistry) ReserveName(ctx context.Context, domain interfaces.DomainConfig, user string) (*interfaces.Reservation, error) {
	c.mu.Lock()
	c.reserveCalls++
	c.mu.Unlock()
	return c.NameRegistry.ReserveName(ctx, domain, user)
}

func (c *countingRegistry) MarkJoined(ctx context.Context, domain interfaces.DomainConfig, seq int, notes string) error {
	c.mu.Lock()
	c.markJoinedCalls++
	var injected error
	if len(c.markJoinedErrs) > 0 {
		injected, c.markJoinedErrs = c.markJoinedErrs[0], c.markJoinedErrs[1:]
	}
	c.mu.Unlock()
	if injected != nil {
		return injected
	}
	return c.NameRegistry.MarkJoined(ctx, domain, seq, notes)
}

type stubLocator struct {
	mu    sync.Mutex
	calls int
	fails int
}

func (s *stubLocator) LocateDomainControllers(_ context.Context, domain, _ string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return nil, interfaces.ErrNoDomainController
	}
	return []string{"dc1." + domain}, nil
}

type testEnv struct {
	p        *Provisioner
	ws       *workstation.Recorder
	table    *registry.MemoryTable
	registry *countingRegistry
	state    *state.FileStore
	secrets  *secrets.FileStore
	locator  *stubLocator
}

func newTestEnv(t *testing.T, escrowTarget interfaces.CredentialEscrow) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	tables := registry.NewMemoryTables()
	env := &testEnv{
		ws:       workstation.NewRecorder(log),
		table:    tables.Table(testDomain),
		registry: &countingRegistry{NameRegistry: registry.NewTableRegistry(tables.Open, log)},
		state:    state.NewFileStore(filepath.Join(dir, "state.json"), log),
		secrets: secrets.NewFileStore(filepath.Join(dir, "secret.bin"),
			secrets.NewMachineKeyProtector(func() ([]byte, error) { return []byte("machine-1"), nil }), log),
		locator: &stubLocator{},
	}

	p, err := New(Deps{
		Registry:    env.registry,
		Secrets:     env.secrets,
		State:       env.state,
		Workstation: env.ws,
		Escrow:      escrowTarget,
		Locator:     env.locator,
		Log:         log,
		DCWait:      time.Second,
	})
	require.NoError(t, err)
	p.dcPoll = time.Millisecond
	env.p = p
	return env
}

func (e *testEnv) seed(t *testing.T, count int) {
	t.Helper()
	for i := 1; i <= count; i++ {
		_, err := e.table.Append(context.Background(), interfaces.RegistryRow{
			Domain: "nycoa", Sequence: i, Hostname: "seed", AssignedUser: "seed", Status: interfaces.StatusJoined,
		})
		require.NoError(t, err)
	}
}

func (e *testEnv) rows(t *testing.T) []registry.TableRow {
	t.Helper()
	rows, err := e.table.Rows(context.Background())
	require.NoError(t, err)
	return rows
}

func initialRequest() InitialRunRequest {
	return InitialRunRequest{
		Domain:              testDomain,
		AssignedUser:        "JohnDoe",
		InitialUser:         "builder",
		JoinUsername:        `NYCOA\joiner`,
		JoinPassword:        "join-pass",
		ContinuationCommand: continuation,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestInitialRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.seed(t, 6)

	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	assert.Equal(t, "007-johndoe", env.ws.Hostname)
	assert.Equal(t, DefaultLocalAdmin, env.ws.AutologonUser)
	assert.Equal(t, continuation, env.ws.Continuations[ContinuationName])
	assert.Equal(t, 1, env.ws.Count(workstation.OpLogoff))

	rows := env.rows(t)
	require.Len(t, rows, 7)
	assert.Equal(t, "007-johndoe", rows[6].Row.Hostname)
	assert.Equal(t, "johndoe", rows[6].Row.AssignedUser)
	assert.Equal(t, interfaces.StatusPending, rows[6].Row.Status)

	st, err := env.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseAwaitingLogon, st.Phase)
	assert.Equal(t, 7, st.Sequence)
	assert.Equal(t, "007-johndoe", st.Hostname)
	assert.Equal(t, "builder", st.InitialUser)
	assert.Equal(t, DefaultLocalAdmin, st.LocalAdminUser)
	assert.Equal(t, testDomain, st.DomainConfig)

	raw, err := os.ReadFile(env.state.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "join-pass")

	secret, err := env.secrets.Get(ctx, st.SecretRef)
	require.NoError(t, err)
	var blob interfaces.SecretBlob
	require.NoError(t, json.Unmarshal(secret, &blob))
	adminPassword, ok := env.ws.Password(DefaultLocalAdmin)
	require.True(t, ok)
	assert.Equal(t, adminPassword, blob.LocalAdminPassword)
	assert.Len(t, blob.LocalAdminPassword, 20)
	assert.Equal(t, `NYCOA\joiner`, blob.DomainUsername)
	assert.Equal(t, "join-pass", blob.DomainPassword)
}

func TestInitialRun_ExplicitPasswordAndAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	req := initialRequest()
	req.LocalAdmin = "ITAdmin"
	req.LocalAdminPassword = "Chosen-Pa55"

	require.NoError(t, env.p.InitialRun(context.Background(), req))
	pw, ok := env.ws.Password("ITAdmin")
	require.True(t, ok)
	assert.Equal(t, "Chosen-Pa55", pw)
}

func TestInitialRun_RefusesUnresolvedState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	err := env.p.InitialRun(ctx, initialRequest())
	require.ErrorIs(t, err, interfaces.ErrStateExists)
	assert.Equal(t, 1, env.registry.reserveCalls)
	assert.Len(t, env.rows(t), 1)
}

func TestInitialRun_PreconditionsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*testEnv, *InitialRunRequest)
		want   error
	}{
		{
			name:   "not elevated",
			mutate: func(e *testEnv, _ *InitialRunRequest) { e.ws.Elevated = false },
			want:   interfaces.ErrNotElevated,
		},
		{
			name:   "bad template",
			mutate: func(_ *testEnv, r *InitialRunRequest) { r.Domain.HostnameTemplate = "{name}-{seq}" },
			want:   interfaces.ErrInvalidTemplate,
		},
		{
			name:   "missing join credentials",
			mutate: func(_ *testEnv, r *InitialRunRequest) { r.JoinPassword = "" },
			want:   interfaces.ErrInvalidConfig,
		},
		{
			name:   "missing assigned user",
			mutate: func(_ *testEnv, r *InitialRunRequest) { r.AssignedUser = " " },
			want:   interfaces.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			req := initialRequest()
			tt.mutate(env, &req)

			err := env.p.InitialRun(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, env.ws.Operations())
			assert.Empty(t, env.rows(t))
			assert.False(t, fileExists(env.state.Path()))
		})
	}
}

func TestInitialRun_LocalFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	boom := errors.New("access denied")
	env.ws.FailOn(workstation.OpConfigureAutologon, boom)

	err := env.p.InitialRun(ctx, initialRequest())
	require.ErrorIs(t, err, boom)

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, PhaseInitialRun, phaseErr.Phase)
	assert.Equal(t, "configure autologon", phaseErr.Step)

	assert.False(t, fileExists(env.state.Path()))
	assert.False(t, fileExists(env.secrets.Path()))
	assert.Equal(t, 1, env.ws.Count(workstation.OpClearAutologon))
	assert.Equal(t, 0, env.ws.Count(workstation.OpLogoff))

	rows := env.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, interfaces.StatusPending, rows[0].Row.Status)
}

func TestInitialRun_RegistryFailureIsFatalBeforeSideEffects(t *testing.T) {
	env := newTestEnv(t, nil)
	failing := new(registry.MockNameRegistry)
	failing.On("ReserveName", mock.Anything, mock.Anything, mock.Anything).Return(nil, interfaces.ErrRegistryUnavailable)
	env.p.registry = failing

	err := env.p.InitialRun(context.Background(), initialRequest())
	require.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
	assert.Equal(t, 0, env.ws.Count(workstation.OpRenameComputer))
	assert.False(t, fileExists(env.state.Path()))
}

func TestInitialRun_Escrow(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	escrowDir := t.TempDir()
	target, err := escrow.NewFileEscrow(escrowDir, []string{id.Recipient().String()}, nil)
	require.NoError(t, err)

	env := newTestEnv(t, target)
	require.NoError(t, env.p.InitialRun(context.Background(), initialRequest()))

	sealed, err := os.ReadFile(target.Path("001-johndoe"))
	require.NoError(t, err)
	record, err := escrow.OpenRecord(sealed, id.String())
	require.NoError(t, err)

	pw, _ := env.ws.Password(DefaultLocalAdmin)
	assert.Equal(t, pw, record.Password)
	assert.Equal(t, DefaultLocalAdmin, record.Username)
	assert.Equal(t, 1, record.Sequence)
}

func TestInitialRun_EscrowFailureIsFatal(t *testing.T) {
	target := new(escrow.MockCredentialEscrow)
	target.On("Name").Return("mock")
	target.On("Deposit", mock.Anything, mock.Anything).Return(errors.New("share offline"))

	env := newTestEnv(t, target)
	err := env.p.InitialRun(context.Background(), initialRequest())

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "escrow credential", phaseErr.Step)
	assert.False(t, fileExists(env.state.Path()))
	assert.False(t, fileExists(env.secrets.Path()))
	assert.Equal(t, 0, env.ws.Count(workstation.OpLogoff))
}

func TestFullRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.seed(t, 6)

	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))
	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{}))

	assert.Equal(t, "nycoa", env.ws.Domain)
	assert.Empty(t, env.ws.AutologonUser)
	assert.False(t, env.ws.HasUser("builder"))
	assert.True(t, env.ws.HasUser(DefaultLocalAdmin))
	assert.Equal(t, 1, env.ws.Count(workstation.OpRestart))

	ops := env.ws.Operations()
	var join workstation.Operation
	for _, op := range ops {
		if op.Op == workstation.OpJoinDomain {
			join = op
		}
	}
	assert.Equal(t, []string{"nycoa", `NYCOA\joiner`, "<redacted>", "OU=Laptops,DC=nycoa,DC=local"}, join.Args)

	rows := env.rows(t)
	require.Len(t, rows, 7, "post-login must not append rows")
	assert.Equal(t, interfaces.StatusJoined, rows[6].Row.Status)
	assert.Equal(t, RegistryNotes, rows[6].Row.Notes)
	assert.Equal(t, "007-johndoe", rows[6].Row.Hostname)
	assert.Equal(t, 7, rows[6].Row.Sequence)

	assert.False(t, fileExists(env.state.Path()))
	assert.False(t, fileExists(env.secrets.Path()))
}

func TestPostLogin_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))
	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))

	assert.Equal(t, 1, env.registry.markJoinedCalls)
	assert.Equal(t, 1, env.ws.Count(workstation.OpJoinDomain))
	assert.Equal(t, 0, env.ws.Count(workstation.OpRestart))
	assert.Len(t, env.rows(t), 1)
}

func TestPostLogin_NothingToResume(t *testing.T) {
	ctx := context.Background()

	t.Run("no state", func(t *testing.T) {
		env := newTestEnv(t, nil)
		require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{}))
		assert.Empty(t, env.ws.Operations())
	})

	t.Run("corrupt state", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.secrets.Put(ctx, []byte(`{"domain_password":"join-pass"}`))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(env.state.Path(), []byte("{not json"), 0600))

		require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{}))
		assert.Empty(t, env.ws.Operations())
		assert.False(t, fileExists(env.secrets.Path()))
	})

	t.Run("not elevated", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.ws.Elevated = false
		assert.ErrorIs(t, env.p.PostLogin(ctx, PostLoginRequest{}), interfaces.ErrNotElevated)
	})
}

func TestPostLogin_ResumesFromRenamedCheckpoint(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.ws.FailOn(workstation.OpRegisterContinuation, errors.New("registry locked"))

	err := env.p.InitialRun(ctx, initialRequest())
	require.Error(t, err)

	st, err := env.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseRenamed, st.Phase)

	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))

	assert.Equal(t, 1, env.ws.Count(workstation.OpRenameComputer))
	assert.Equal(t, 1, env.ws.Count(workstation.OpEnsureLocalAdmin))
	assert.Equal(t, 1, env.registry.reserveCalls)
	assert.Equal(t, "nycoa", env.ws.Domain)
	assert.Equal(t, interfaces.StatusJoined, env.rows(t)[0].Row.Status)
	assert.False(t, fileExists(env.state.Path()))
}

func TestInitialRun_ResumesRenamedCheckpoint(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.ws.FailOn(workstation.OpRegisterContinuation, errors.New("registry locked"))
	require.Error(t, env.p.InitialRun(ctx, initialRequest()))

	env.ws.FailOn(workstation.OpRegisterContinuation, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	assert.Equal(t, 1, env.registry.reserveCalls)
	assert.Equal(t, 1, env.ws.Count(workstation.OpRenameComputer))
	assert.Equal(t, 1, env.ws.Count(workstation.OpLogoff))

	st, err := env.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseAwaitingLogon, st.Phase)
}

func TestPostLogin_MarkJoinedFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	env.registry.markJoinedErrs = []error{interfaces.ErrRegistryUnavailable}
	err := env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true})
	require.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)

	st, err := env.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseJoined, st.Phase)
	assert.False(t, st.RegistryUpdated)
	assert.False(t, fileExists(env.secrets.Path()), "join credentials must not outlive the join")

	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))
	assert.Equal(t, 1, env.ws.Count(workstation.OpJoinDomain))
	assert.Equal(t, 2, env.registry.markJoinedCalls)
	assert.Equal(t, interfaces.StatusJoined, env.rows(t)[0].Row.Status)
	assert.False(t, fileExists(env.state.Path()))
	assert.False(t, fileExists(env.secrets.Path()))
}

func TestPostLogin_RowNotFoundIsSurfaced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	env.registry.markJoinedErrs = []error{interfaces.ErrRowNotFound}
	err := env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true})
	require.ErrorIs(t, err, interfaces.ErrRowNotFound)
	assert.True(t, fileExists(env.state.Path()))
	assert.False(t, fileExists(env.secrets.Path()))

	st, err := env.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseJoined, st.Phase)
	_, err = env.secrets.Get(ctx, st.SecretRef)
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)
}

func TestPostLogin_AlreadyJoined(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))
	env.ws.Domain = "NYCOA"

	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))
	assert.Equal(t, 0, env.ws.Count(workstation.OpJoinDomain))
	assert.Equal(t, 0, env.locator.calls)
	assert.Equal(t, 1, env.registry.markJoinedCalls)
}

func TestPostLogin_JoinFailureKeepsStateAndSecret(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	env.ws.FailOn(workstation.OpJoinDomain, errors.New("the specified domain either does not exist"))
	require.Error(t, env.p.PostLogin(ctx, PostLoginRequest{}))

	st, err := env.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseAwaitingLogon, st.Phase)
	assert.True(t, fileExists(env.secrets.Path()))
	assert.Equal(t, 0, env.registry.markJoinedCalls)
	assert.Equal(t, 0, env.ws.Count(workstation.OpRestart))
}

func TestPostLogin_WaitsForDomainController(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.locator.fails = 2
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))
	assert.Equal(t, 3, env.locator.calls)
	assert.Equal(t, 1, env.ws.Count(workstation.OpJoinDomain))
}

func TestPostLogin_NoDomainController(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.locator.fails = 1 << 30
	env.p.dcWait = 50 * time.Millisecond
	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))

	err := env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true})
	require.ErrorIs(t, err, interfaces.ErrNoDomainController)
	assert.Equal(t, 0, env.ws.Count(workstation.OpJoinDomain))
	assert.True(t, fileExists(env.state.Path()))
}

func TestPostLogin_KeepsBuildUserWhenItIsTheAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	req := initialRequest()
	req.InitialUser = "workstationadmin"
	require.NoError(t, env.p.InitialRun(ctx, req))

	require.NoError(t, env.p.PostLogin(ctx, PostLoginRequest{NoRestart: true}))
	assert.Equal(t, 0, env.ws.Count(workstation.OpRemoveLocalUser))
	assert.True(t, env.ws.HasUser(DefaultLocalAdmin))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.p.Status(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNoState)

	require.NoError(t, env.p.InitialRun(ctx, initialRequest()))
	st, err := env.p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "001-johndoe", st.Hostname)
}

func TestPhaseError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&PhaseError{Phase: PhasePostLogin, Step: "join domain", Err: cause})
	assert.Equal(t, "post-login: join domain: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
