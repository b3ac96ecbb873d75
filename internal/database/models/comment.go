package models

import (
	"context"
	"fmt"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// CommentModel handles read operations on post comments.
type CommentModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewComment creates a CommentModel with database access.
func NewComment(db *bun.DB, logger *zap.Logger) *CommentModel {
	return &CommentModel{
		db:     db,
		logger: logger.Named("db_comment"),
	}
}

// CountComments returns live comment counts per post with one grouped query.
// Posts without comments are absent from the result.
func (m *CommentModel) CountComments(ctx context.Context, postIDs []int64) (map[int64]int64, error) {
	if len(postIDs) == 0 {
		return map[int64]int64{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]int64, error) {
		var rows []types.PostCount
		err := m.db.NewSelect().
			Model((*types.PostComment)(nil)).
			Column("post_id").
			ColumnExpr("COUNT(*) AS count").
			Where("post_id IN (?)", bun.In(postIDs)).
			Where("is_deleted = false").
			Group("post_id").
			Scan(ctx, &rows)
		if err != nil {
			return nil, fmt.Errorf("failed to count comments: %w", err)
		}

		counts := make(map[int64]int64, len(rows))
		for _, row := range rows {
			counts[row.PostID] = row.Count
		}
		return counts, nil
	})
}
