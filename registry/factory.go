package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Options selects and configures the registry backend.
type Options struct {
	// CredentialsPath overrides the configuration's google_credentials.
	CredentialsPath string

	// RunMigrations applies the schema before using a Postgres backend.
	RunMigrations bool

	Retry RetryPolicy
	Log   *slog.Logger
}

// Open builds the NameRegistry selected by cfg.Registry.Backend, wrapped in
// Retrying. The returned close function releases backend resources.
func Open(ctx context.Context, cfg *config.AppConfig, opts Options) (interfaces.NameRegistry, func(), error) {
	log := opts.Log
	if log == nil {
		log = common.DiscardLogger()
	}
	noop := func() {}

	var backend interfaces.NameRegistry
	closeFn := noop

	switch cfg.Registry.Backend {
	case config.BackendSheets:
		credentials, err := cfg.ResolveCredentialsPath(opts.CredentialsPath)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
		}
		svc, err := NewSheetsService(ctx, credentials, log)
		if err != nil {
			return nil, noop, err
		}
		backend = NewTableRegistry(svc.Open, log)

	case config.BackendPostgres:
		if opts.RunMigrations {
			if err := RunMigrations(ctx, cfg.Registry.DatabaseURL, cfg.Registry.Schema, log); err != nil {
				return nil, noop, err
			}
		}
		pool, err := NewPool(ctx, cfg.Registry.DatabaseURL, cfg.Registry.Schema)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %v", interfaces.ErrRegistryUnavailable, err)
		}
		backend = NewPostgresRegistry(pool, log)
		closeFn = pool.Close

	case config.BackendHTTP:
		backend = NewHTTPClient(cfg.Registry.ServerAddr)

	default:
		return nil, noop, fmt.Errorf("%w: unknown registry backend %q", interfaces.ErrInvalidConfig, cfg.Registry.Backend)
	}

	log.Debug("Opened name registry", slog.String("backend", cfg.Registry.Backend))
	return NewRetrying(backend, opts.Retry, log), closeFn, nil
}
