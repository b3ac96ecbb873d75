package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/tripnest/tripnest/cmd/db/commands"
	"github.com/tripnest/tripnest/internal/database"
	"github.com/tripnest/tripnest/internal/database/migrations"
	"github.com/tripnest/tripnest/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Setup dependencies
	deps, db, err := setupDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	defer db.Close()

	app := &cli.Command{
		Name:     "db",
		Usage:    "Database management tool",
		Commands: commands.MigrationCommands(deps),
	}

	return app.Run(ctx, os.Args)
}

// setupDependencies initializes the database connection and migrator.
func setupDependencies(ctx context.Context) (*commands.CLIDependencies, database.Client, error) {
	// Load full configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create development logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Connect to database
	db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, logger, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &commands.CLIDependencies{
		Migrator: migrate.NewMigrator(db.DB(), migrations.Migrations),
		Logger:   logger,
		Out:      os.Stdout,
		Create:   migrations.Create,
	}, db, nil
}
