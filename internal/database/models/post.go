package models

import (
	"context"
	"fmt"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PostModel handles read operations on posts.
type PostModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPost creates a PostModel with database access.
func NewPost(db *bun.DB, logger *zap.Logger) *PostModel {
	return &PostModel{
		db:     db,
		logger: logger.Named("db_post"),
	}
}

// GetPostPage returns one page of live posts, newest first, along with the
// total number of live posts. Page numbers start at 1.
func (m *PostModel) GetPostPage(ctx context.Context, page, size int) ([]*types.Post, int64, error) {
	type pageResult struct {
		posts []*types.Post
		total int64
	}

	result, err := dbretry.Operation(ctx, func(ctx context.Context) (pageResult, error) {
		var posts []*types.Post
		err := m.db.NewSelect().
			Model(&posts).
			ColumnExpr("p.*").
			ColumnExpr("COUNT(*) OVER() AS total").
			Where("p.is_deleted = false").
			Order("p.created_at DESC", "p.id DESC").
			Limit(size).
			Offset((page - 1) * size).
			Scan(ctx)
		if err != nil {
			return pageResult{}, fmt.Errorf("failed to get post page: %w (page=%d, size=%d)", err, page, size)
		}

		if len(posts) > 0 {
			return pageResult{posts: posts, total: posts[0].Total}, nil
		}

		// Past the last page the window function has no row to report on
		total, err := m.db.NewSelect().
			Model((*types.Post)(nil)).
			Where("is_deleted = false").
			Count(ctx)
		if err != nil {
			return pageResult{}, fmt.Errorf("failed to count posts: %w", err)
		}

		return pageResult{posts: posts, total: int64(total)}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return result.posts, result.total, nil
}
