package models

import (
	"context"
	"fmt"
	"time"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// LikeModel handles database operations for post likes.
type LikeModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewLike creates a LikeModel with database access.
func NewLike(db *bun.DB, logger *zap.Logger) *LikeModel {
	return &LikeModel{
		db:     db,
		logger: logger.Named("db_like"),
	}
}

// AddLike makes the like live, reviving a soft-deleted row. It reports
// whether the relation was absent or deleted before.
func (m *LikeModel) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		now := time.Now()
		like := &types.PostLike{
			PostID:    postID,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		// The conflict update only matches deleted rows so a live like affects nothing
		result, err := m.db.NewInsert().
			Model(like).
			On("CONFLICT (post_id, user_id) DO UPDATE").
			Set("is_deleted = false").
			Set("updated_at = EXCLUDED.updated_at").
			Where("pl.is_deleted = true").
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to add like: %w (postID=%d, userID=%d)", err, postID, userID)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get rows affected: %w", err)
		}

		return affected == 1, nil
	})
}

// RemoveLike soft-deletes a live like and reports whether one existed.
func (m *LikeModel) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewUpdate().
			Model((*types.PostLike)(nil)).
			Set("is_deleted = true").
			Set("updated_at = ?", time.Now()).
			Where("post_id = ?", postID).
			Where("user_id = ?", userID).
			Where("is_deleted = false").
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to remove like: %w (postID=%d, userID=%d)", err, postID, userID)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get rows affected: %w", err)
		}

		return affected == 1, nil
	})
}

// IsLiked reports whether a live like exists.
func (m *LikeModel) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		exists, err := m.db.NewSelect().
			Model((*types.PostLike)(nil)).
			Where("post_id = ?", postID).
			Where("user_id = ?", userID).
			Where("is_deleted = false").
			Exists(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to check like: %w (postID=%d, userID=%d)", err, postID, userID)
		}
		return exists, nil
	})
}

// CountLikes returns live like counts per post with one grouped query.
// Without IDs it covers every post with at least one live like. Posts
// without likes are absent from the result.
func (m *LikeModel) CountLikes(ctx context.Context, postIDs ...int64) (map[int64]int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]int64, error) {
		var rows []types.PostCount

		query := m.db.NewSelect().
			Model((*types.PostLike)(nil)).
			Column("post_id").
			ColumnExpr("COUNT(*) AS count").
			Where("is_deleted = false").
			Group("post_id")
		if len(postIDs) > 0 {
			query = query.Where("post_id IN (?)", bun.In(postIDs))
		}

		if err := query.Scan(ctx, &rows); err != nil {
			return nil, fmt.Errorf("failed to count likes: %w", err)
		}

		counts := make(map[int64]int64, len(rows))
		for _, row := range rows {
			counts[row.PostID] = row.Count
		}

		m.logger.Debug("Counted likes",
			zap.Int("requested", len(postIDs)),
			zap.Int("posts", len(counts)))

		return counts, nil
	})
}
