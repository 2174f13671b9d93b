package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/workstation-provisioning/cmd/flags"
	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/httpserver"
	"github.com/ruteri/workstation-provisioning/registry"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for API",
		EnvVars: []string{"REGISTRY_LISTEN_ADDR"},
	},
	&cli.BoolFlag{
		Name:    "migrate",
		Value:   false,
		Usage:   "apply database migrations before serving (postgres backend)",
		EnvVars: []string{"REGISTRY_MIGRATE"},
	},
	flags.ConfigFlag,
	flags.GoogleCredentialsFlag,
}

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the workstation name registry over HTTP",
		Flags: append(append(serverFlags, flags.LogFlags...), flags.ServerFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			logger := flags.SetupLogger(cCtx)

			cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
			if err != nil {
				logger.Error("Failed to load configuration", "err", err)
				return err
			}
			if cfg.Registry.Backend == config.BackendHTTP {
				return fmt.Errorf("registry-server cannot use the %q backend", config.BackendHTTP)
			}

			ctx := context.Background()
			reg, closeFn, err := registry.Open(ctx, cfg, registry.Options{
				CredentialsPath: cCtx.String(flags.GoogleCredentialsFlag.Name),
				RunMigrations:   cCtx.Bool("migrate"),
				Retry:           registry.DefaultRetryPolicy(),
				Log:             logger,
			})
			if err != nil {
				logger.Error("Failed to open registry backend", "err", err)
				return err
			}
			defer closeFn()

			logger.Info("Serving domains", "backend", cfg.Registry.Backend, "domains", cfg.Domains())

			handler := httpserver.NewHandler(reg, cfg.Domain, logger)
			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
