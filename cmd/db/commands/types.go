package commands

import (
	"context"
	"errors"
	"io"

	"github.com/tripnest/tripnest/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrNameRequired is returned when a command needs a NAME argument.
var ErrNameRequired = errors.New("NAME argument required")

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	Migrator database.Migrator
	Logger   *zap.Logger
	Out      io.Writer

	// Create scaffolds a Go migration file in a directory.
	Create func(ctx context.Context, dir, name string) (*migrate.MigrationFile, error)
}
