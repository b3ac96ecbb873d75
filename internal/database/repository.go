package database

import (
	"github.com/tripnest/tripnest/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	likes    *models.LikeModel
	counters *models.CounterModel
	posts    *models.PostModel
	users    *models.UserModel
	trips    *models.TripModel
	images   *models.ImageModel
	comments *models.CommentModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		likes:    models.NewLike(db, logger),
		counters: models.NewCounter(db, logger),
		posts:    models.NewPost(db, logger),
		users:    models.NewUser(db, logger),
		trips:    models.NewTrip(db, logger),
		images:   models.NewImage(db, logger),
		comments: models.NewComment(db, logger),
	}
}

// Like returns the like model repository.
func (r *Repository) Like() *models.LikeModel {
	return r.likes
}

// Counter returns the counter summary model repository.
func (r *Repository) Counter() *models.CounterModel {
	return r.counters
}

// Post returns the post model repository.
func (r *Repository) Post() *models.PostModel {
	return r.posts
}

// User returns the user model repository.
func (r *Repository) User() *models.UserModel {
	return r.users
}

// Trip returns the trip model repository.
func (r *Repository) Trip() *models.TripModel {
	return r.trips
}

// Image returns the image model repository.
func (r *Repository) Image() *models.ImageModel {
	return r.images
}

// Comment returns the comment model repository.
func (r *Repository) Comment() *models.CommentModel {
	return r.comments
}
