package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/workstation-provisioning/cmd/flags"
	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/escrow"
	"github.com/ruteri/workstation-provisioning/interfaces"
	"github.com/ruteri/workstation-provisioning/provision"
	"github.com/ruteri/workstation-provisioning/registry"
	"github.com/ruteri/workstation-provisioning/secrets"
	"github.com/ruteri/workstation-provisioning/state"
	"github.com/ruteri/workstation-provisioning/workstation"
)

var flagState = &cli.StringFlag{
	Name:    "state",
	Value:   state.DefaultPath(),
	Usage:   "state file location",
	EnvVars: []string{"COMPUTER_SETUP_STATE"},
}

var flagNoRestart = &cli.BoolFlag{
	Name:  "no-restart",
	Usage: "skip the automatic restart after the domain join",
}

var initialRunFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "domain",
		Required: true,
		Usage:    "domain key from the configuration",
	},
	&cli.StringFlag{
		Name:     "assigned-user",
		Required: true,
		Usage:    "user to embed in the hostname",
	},
	&cli.StringFlag{
		Name:  "initial-user",
		Value: currentUser(),
		Usage: "temporary build account removed after the domain join",
	},
	&cli.StringFlag{
		Name:  "local-admin",
		Value: provision.DefaultLocalAdmin,
		Usage: "permanent local administrator username",
	},
	&cli.StringFlag{
		Name:    "local-admin-password",
		Usage:   "local administrator password (generated when empty)",
		EnvVars: []string{"LOCAL_ADMIN_PASSWORD"},
	},
	&cli.StringFlag{
		Name:    "join-username",
		Usage:   "account allowed to join computers to the domain",
		EnvVars: []string{"DOMAIN_JOIN_USERNAME"},
	},
	&cli.StringFlag{
		Name:    "join-password",
		Usage:   "password of the join account",
		EnvVars: []string{"DOMAIN_JOIN_PASSWORD"},
	},
	flagState,
	flagNoRestart,
	&cli.BoolFlag{
		Name:  "dry-run",
		Usage: "rehearse both phases without touching the machine or the registry",
	},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "computer-setup",
		Usage: "Automate Windows workstation provisioning",
		Flags: append([]cli.Flag{flags.ConfigFlag, flags.GoogleCredentialsFlag}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:   "initial-run",
				Usage:  "reserve a hostname, rename the machine and prepare the domain join",
				Flags:  initialRunFlags,
				Action: runInitial,
			},
			{
				Name:   "post-login",
				Usage:  "join the domain and finish provisioning after the first logon",
				Flags:  []cli.Flag{flagState, flagNoRestart},
				Action: runPostLogin,
			},
			{
				Name:   "status",
				Usage:  "print the pending provisioning state",
				Flags:  []cli.Flag{flagState},
				Action: runStatus,
			},
		},
	}
}

func runInitial(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		return err
	}
	domain, err := cfg.Domain(cCtx.String("domain"))
	if err != nil {
		return err
	}

	statePath, err := filepath.Abs(cCtx.String(flagState.Name))
	if err != nil {
		return err
	}

	req := provision.InitialRunRequest{
		Domain:             domain,
		AssignedUser:       cCtx.String("assigned-user"),
		InitialUser:        cCtx.String("initial-user"),
		LocalAdmin:         cCtx.String("local-admin"),
		LocalAdminPassword: cCtx.String("local-admin-password"),
		JoinUsername:       cCtx.String("join-username"),
		JoinPassword:       cCtx.String("join-password"),
	}

	if cCtx.Bool("dry-run") {
		return rehearse(ctx, logger, req, cCtx.Bool(flagNoRestart.Name))
	}

	req.ContinuationCommand, err = continuationCommand(statePath, cfg.Path)
	if err != nil {
		return err
	}

	p, closeFn, err := newProvisioner(ctx, cCtx, logger, cfg, statePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return p.InitialRun(ctx, req)
}

func runPostLogin(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePath, err := filepath.Abs(cCtx.String(flagState.Name))
	if err != nil {
		return err
	}

	// The continuation must stay a no-op without pending state, whatever
	// the configuration or the registry look like by then.
	pending, err := provision.LoadPending(ctx,
		state.NewFileStore(statePath, logger),
		secrets.NewFileStore(secrets.DefaultPath(statePath), secrets.DefaultProtector(), logger),
		logger)
	if err != nil {
		return err
	}
	if pending == nil {
		return nil
	}

	cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		return err
	}

	p, closeFn, err := newProvisioner(ctx, cCtx, logger, cfg, statePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return p.PostLogin(ctx, provision.PostLoginRequest{NoRestart: cCtx.Bool(flagNoRestart.Name)})
}

func runStatus(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	store := state.NewFileStore(cCtx.String(flagState.Name), logger)

	st, err := store.Load(cCtx.Context)
	if errors.Is(err, interfaces.ErrNoState) {
		fmt.Println("No pending provisioning.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("State file:    %s\n", store.Path())
	fmt.Printf("Phase:         %s\n", st.Phase)
	fmt.Printf("Domain:        %s\n", st.Domain)
	fmt.Printf("Hostname:      %s (sequence %03d)\n", st.Hostname, st.Sequence)
	fmt.Printf("Assigned user: %s\n", st.AssignedUser)
	fmt.Printf("Build user:    %s\n", st.InitialUser)
	fmt.Printf("Local admin:   %s\n", st.LocalAdminUser)
	fmt.Printf("Registry:      %s\n", registryStatus(st))
	fmt.Printf("Created:       %s\n", st.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:       %s\n", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func registryStatus(st *interfaces.ProvisioningState) string {
	if st.RegistryUpdated {
		return string(interfaces.StatusJoined)
	}
	return string(interfaces.StatusPending)
}

// newProvisioner wires the production collaborators.
func newProvisioner(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, cfg *config.AppConfig, statePath string) (*provision.Provisioner, func(), error) {
	reg, closeFn, err := registry.Open(ctx, cfg, registry.Options{
		CredentialsPath: cCtx.String(flags.GoogleCredentialsFlag.Name),
		Retry:           registry.DefaultRetryPolicy(),
		Log:             logger,
	})
	if err != nil {
		return nil, nil, err
	}

	deps := provision.Deps{
		Registry:    reg,
		Secrets:     secrets.NewFileStore(secrets.DefaultPath(statePath), secrets.DefaultProtector(), logger),
		State:       state.NewFileStore(statePath, logger),
		Workstation: workstation.New(logger),
		Locator:     workstation.NewDNSLocator(logger),
		Log:         logger,
	}

	if len(cfg.Escrow) > 0 {
		multi, err := escrow.NewFactory(cfg.EscrowRecipients, logger).CreateMulti(cfg.Escrow)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		deps.Escrow = multi
	}

	p, err := provision.New(deps)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}

// rehearse runs both phases against a recorder and an in-memory registry.
func rehearse(ctx context.Context, logger *slog.Logger, req provision.InitialRunRequest, noRestart bool) error {
	dir, err := os.MkdirTemp("", "computer-setup-dry-run-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	statePath := filepath.Join(dir, state.DefaultFileName)
	req.ContinuationCommand, err = continuationCommand(statePath, "")
	if err != nil {
		return err
	}
	if req.JoinUsername == "" {
		req.JoinUsername = "dry-run"
	}
	if req.JoinPassword == "" {
		req.JoinPassword = "dry-run"
	}

	recorder := workstation.NewRecorder(logger)
	p, err := provision.New(provision.Deps{
		Registry:    registry.NewTableRegistry(registry.NewMemoryTables().Open, logger),
		Secrets:     secrets.NewFileStore(secrets.DefaultPath(statePath), secrets.NewMachineKeyProtector(secrets.ReadMachineID), logger),
		State:       state.NewFileStore(statePath, logger),
		Workstation: recorder,
		Log:         logger,
	})
	if err != nil {
		return err
	}

	if err := p.InitialRun(ctx, req); err != nil {
		return err
	}
	if err := p.PostLogin(ctx, provision.PostLoginRequest{NoRestart: noRestart}); err != nil {
		return err
	}

	fmt.Println("Dry run, operations that would be performed:")
	for i, op := range recorder.Operations() {
		fmt.Printf("  %2d. %s %s\n", i+1, op.Op, strings.Join(op.Args, " "))
	}
	return nil
}

// continuationCommand is the RunOnce command line that resumes PostLogin.
func continuationCommand(statePath, configPath string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	cmd := fmt.Sprintf(`"%s" post-login --state "%s"`, exe, statePath)
	if configPath != "" {
		cmd = fmt.Sprintf(`"%s" --config "%s" post-login --state "%s"`, exe, configPath, statePath)
	}
	return cmd, nil
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	name := u.Username
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
