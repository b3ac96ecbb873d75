package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Feed ordering over live posts
			CREATE INDEX IF NOT EXISTS idx_posts_feed
			ON posts (created_at DESC, id DESC)
			WHERE is_deleted = false;

			CREATE INDEX IF NOT EXISTS idx_posts_user
			ON posts (user_id, created_at DESC);

			CREATE INDEX IF NOT EXISTS idx_trips_owner
			ON trips (owner_id);

			-- Cover lookup by lowest position
			CREATE INDEX IF NOT EXISTS idx_post_images_cover
			ON post_images (post_id, position, id);

			CREATE INDEX IF NOT EXISTS idx_post_comments_post
			ON post_comments (post_id)
			WHERE is_deleted = false;

			-- Live like counts per post
			CREATE INDEX IF NOT EXISTS idx_post_likes_live
			ON post_likes (post_id)
			WHERE is_deleted = false;

			CREATE INDEX IF NOT EXISTS idx_post_likes_user
			ON post_likes (user_id, created_at DESC)
			WHERE is_deleted = false;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_posts_feed;
			DROP INDEX IF EXISTS idx_posts_user;
			DROP INDEX IF EXISTS idx_trips_owner;
			DROP INDEX IF EXISTS idx_post_images_cover;
			DROP INDEX IF EXISTS idx_post_comments_post;
			DROP INDEX IF EXISTS idx_post_likes_live;
			DROP INDEX IF EXISTS idx_post_likes_user;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
