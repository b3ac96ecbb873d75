package models

import (
	"context"
	"fmt"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ImageModel handles read operations on post images.
type ImageModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewImage creates an ImageModel with database access.
func NewImage(db *bun.DB, logger *zap.Logger) *ImageModel {
	return &ImageModel{
		db:     db,
		logger: logger.Named("db_image"),
	}
}

// GetCoverImages returns the lowest positioned image of each post.
// Posts without images are absent from the result.
func (m *ImageModel) GetCoverImages(ctx context.Context, postIDs []int64) (map[int64]*types.PostImage, error) {
	if len(postIDs) == 0 {
		return map[int64]*types.PostImage{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.PostImage, error) {
		var images []*types.PostImage
		err := m.db.NewSelect().
			Model(&images).
			DistinctOn("pi.post_id").
			Where("pi.post_id IN (?)", bun.In(postIDs)).
			Order("pi.post_id", "pi.position ASC", "pi.id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get cover images: %w", err)
		}

		result := make(map[int64]*types.PostImage, len(images))
		for _, image := range images {
			result[image.PostID] = image
		}
		return result, nil
	})
}
