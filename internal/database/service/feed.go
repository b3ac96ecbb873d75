package service

import (
	"context"

	"github.com/tripnest/tripnest/internal/database/models"
	"github.com/tripnest/tripnest/internal/database/types"
	"go.uber.org/zap"
)

// FeedService serves the batched reads behind feed pages. Each method issues
// a single query regardless of how many IDs it is given.
type FeedService struct {
	posts    *models.PostModel
	users    *models.UserModel
	trips    *models.TripModel
	images   *models.ImageModel
	comments *models.CommentModel
	likes    *models.LikeModel
	logger   *zap.Logger
}

// NewFeed creates a new feed service.
func NewFeed(
	posts *models.PostModel,
	users *models.UserModel,
	trips *models.TripModel,
	images *models.ImageModel,
	comments *models.CommentModel,
	likes *models.LikeModel,
	logger *zap.Logger,
) *FeedService {
	return &FeedService{
		posts:    posts,
		users:    users,
		trips:    trips,
		images:   images,
		comments: comments,
		likes:    likes,
		logger:   logger.Named("feed_service"),
	}
}

// PostPage returns one page of live posts, newest first, and the total count.
func (s *FeedService) PostPage(ctx context.Context, page, size int) ([]*types.Post, int64, error) {
	return s.posts.GetPostPage(ctx, page, size)
}

// UsersByIDs returns the users with the given IDs.
func (s *FeedService) UsersByIDs(ctx context.Context, ids []int64) (map[int64]*types.User, error) {
	return s.users.GetUsersByIDs(ctx, ids)
}

// TripsByIDs returns the trips with the given IDs.
func (s *FeedService) TripsByIDs(ctx context.Context, ids []int64) (map[int64]*types.Trip, error) {
	return s.trips.GetTripsByIDs(ctx, ids)
}

// CoverImages returns the cover image of each post that has one.
func (s *FeedService) CoverImages(ctx context.Context, postIDs []int64) (map[int64]*types.PostImage, error) {
	return s.images.GetCoverImages(ctx, postIDs)
}

// CommentCounts returns live comment counts per post.
func (s *FeedService) CommentCounts(ctx context.Context, postIDs []int64) (map[int64]int64, error) {
	return s.comments.CountComments(ctx, postIDs)
}

// LikeCounts returns live like counts per post.
func (s *FeedService) LikeCounts(ctx context.Context, postIDs []int64) (map[int64]int64, error) {
	if len(postIDs) == 0 {
		return map[int64]int64{}, nil
	}
	return s.likes.CountLikes(ctx, postIDs...)
}
