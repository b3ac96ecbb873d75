package migrations

import (
	"context"

	"github.com/uptrace/bun/migrate"
)

// Directory is where new migrations are created, relative to the repository root.
const Directory = "internal/database/migrations"

// Migrations holds all database migrations.
var Migrations = migrate.NewMigrations() //nolint:gochecknoglobals // -

// goTemplate scaffolds a migration whose up and down steps run in a transaction.
const goTemplate = `package %s

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return nil
		})
	})
}
`

// Create writes a new timestamped Go migration named name into dir.
func Create(ctx context.Context, dir, name string) (*migrate.MigrationFile, error) {
	migrator := migrate.NewMigrator(nil, migrate.NewMigrations(migrate.WithMigrationsDirectory(dir)))
	return migrator.CreateGoMigration(ctx, name, migrate.WithGoTemplate(goTemplate))
}
