package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/tripnest/tripnest/internal/database"
	"github.com/tripnest/tripnest/internal/database/migrations"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// markOnlyFlag records migrations without running them, for schemas that were
// created by hand or restored from a dump.
var markOnlyFlag = &cli.BoolFlag{
	Name:  "mark-only",
	Usage: "Record migrations as applied or rolled back without running them",
}

// MigrationCommands returns all migration-related commands.
func MigrationCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "migrate",
			Usage:  "Apply pending migrations, the same way workers do with --auto-migrate",
			Flags:  []cli.Flag{markOnlyFlag},
			Action: handleMigrate(deps),
		},
		{
			Name:   "rollback",
			Usage:  "Roll back the last migration group",
			Flags:  []cli.Flag{markOnlyFlag},
			Action: handleRollback(deps),
		},
		{
			Name:   "status",
			Usage:  "List migrations and whether workers can start without migrating",
			Action: handleStatus(deps),
		},
		{
			Name:      "create",
			Usage:     "Create a new Go migration file",
			ArgsUsage: "NAME",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "dir",
					Usage: "Directory of the migrations package",
					Value: migrations.Directory,
				},
			},
			Action: handleCreate(deps),
		},
	}
}

func migrationOptions(c *cli.Command) []migrate.MigrationOption {
	if c.Bool(markOnlyFlag.Name) {
		return []migrate.MigrationOption{migrate.WithNopMigration()}
	}
	return nil
}

// handleMigrate handles the 'migrate' command.
func handleMigrate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		group, err := database.Migrate(ctx, deps.Migrator, deps.Logger, migrationOptions(c)...)
		if err != nil {
			return err
		}

		if group.IsZero() {
			_, _ = fmt.Fprintln(deps.Out, "schema is up to date")
			return nil
		}

		_, _ = fmt.Fprintf(deps.Out, "applied %s\n", group)
		return nil
	}
}

// handleRollback handles the 'rollback' command.
func handleRollback(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if err := deps.Migrator.Lock(ctx); err != nil {
			return fmt.Errorf("failed to lock migrations: %w", err)
		}
		defer deps.Migrator.Unlock(ctx) //nolint:errcheck // -

		group, err := deps.Migrator.Rollback(ctx, migrationOptions(c)...)
		if err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}

		if group.IsZero() {
			_, _ = fmt.Fprintln(deps.Out, "no migration groups to roll back")
			return nil
		}

		deps.Logger.Info("Rolled back migrations",
			zap.String("group", group.String()),
			zap.Int("count", len(group.Migrations)))
		_, _ = fmt.Fprintf(deps.Out, "rolled back %s\n", group)
		return nil
	}
}

// handleStatus handles the 'status' command.
func handleStatus(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		if err := deps.Migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}

		ms, err := deps.Migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "MIGRATION\tGROUP\tAPPLIED")
		for _, m := range ms {
			applied := "pending"
			if m.IsApplied() {
				applied = m.MigratedAt.UTC().Format("2006-01-02 15:04:05")
			}
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", m.String(), m.GroupID, applied)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if unapplied := ms.Unapplied(); len(unapplied) > 0 {
			_, _ = fmt.Fprintf(deps.Out,
				"%d pending: workers refuse to start until 'db migrate' runs or they get --auto-migrate\n",
				len(unapplied))
			return nil
		}

		_, _ = fmt.Fprintln(deps.Out, "schema is up to date")
		return nil
	}
}

// handleCreate handles the 'create' command.
func handleCreate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrNameRequired
		}

		mf, err := deps.Create(ctx, c.String("dir"), c.Args().First())
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(deps.Out, "created %s\n", mf.Path)
		return nil
	}
}
