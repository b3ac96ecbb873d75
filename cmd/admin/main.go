package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tripnest/tripnest/cmd/admin/commands"
	"github.com/tripnest/tripnest/internal/setup"
	"github.com/tripnest/tripnest/internal/setup/telemetry"
	"github.com/tripnest/tripnest/internal/worker/core"
	"github.com/urfave/cli/v3"
)

// AdminLogDir specifies where admin tool log files are stored.
const AdminLogDir = "logs/admin_logs"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, setup.Options{
		ServiceType: telemetry.ServiceAdmin,
		LogDir:      AdminLogDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	return NewCommand(&commands.CLIDependencies{
		Registry: app.Registry,
		Counters: app.Counters,
		Monitor:  core.NewMonitor(app.StatusClient, app.Logger),
		Bus:      app.Bus,
		Feed:     app.Feed,
		Logger:   app.Logger,
		Out:      os.Stdout,
	}).Run(ctx, os.Args)
}

// NewCommand builds the admin command tree.
func NewCommand(deps *commands.CLIDependencies) *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Operate tripnest caches, counters and workers",
		Commands: []*cli.Command{
			{
				Name:     "cache",
				Usage:    "Inspect and evict view caches",
				Commands: commands.CacheCommands(deps),
			},
			{
				Name:     "counters",
				Usage:    "Inspect and reconcile like and view counters",
				Commands: commands.CounterCommands(deps),
			},
			{
				Name:     "workers",
				Usage:    "Inspect background workers",
				Commands: commands.WorkerCommands(deps),
			},
			commands.InvalidateCommand(deps),
			commands.FeedCommand(deps),
		},
	}
}
