package migrations

import (
	"context"
	"fmt"

	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.User)(nil),
			(*types.Trip)(nil),
			(*types.Post)(nil),
			(*types.PostImage)(nil),
			(*types.PostComment)(nil),
			(*types.PostLike)(nil),
			(*types.PostCounter)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.PostCounter)(nil),
			(*types.PostLike)(nil),
			(*types.PostComment)(nil),
			(*types.PostImage)(nil),
			(*types.Post)(nil),
			(*types.Trip)(nil),
			(*types.User)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Cascade().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
