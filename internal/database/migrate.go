package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// Migrator is the part of the bun migrator that applies and inspects the schema.
type Migrator interface {
	Init(ctx context.Context) error
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	Migrate(ctx context.Context, opts ...migrate.MigrationOption) (*migrate.MigrationGroup, error)
	Rollback(ctx context.Context, opts ...migrate.MigrationOption) (*migrate.MigrationGroup, error)
	MigrationsWithStatus(ctx context.Context) (migrate.MigrationSlice, error)
}

// Migrate applies every pending migration under the migration lock. Workers
// started with --auto-migrate and the db migrate command both run it.
func Migrate(
	ctx context.Context, migrator Migrator, logger *zap.Logger, opts ...migrate.MigrationOption,
) (*migrate.MigrationGroup, error) {
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck // -

	group, err := migrator.Migrate(ctx, opts...)
	if err != nil {
		return group, fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		logger.Info("Applied migrations",
			zap.String("group", group.String()),
			zap.Int("count", len(group.Migrations)))
	}

	return group, nil
}
