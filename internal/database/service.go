package database

import (
	"github.com/tripnest/tripnest/internal/database/service"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	feed *service.FeedService
}

// NewService creates a new service instance with all services.
func NewService(repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		feed: service.NewFeed(
			repository.Post(),
			repository.User(),
			repository.Trip(),
			repository.Image(),
			repository.Comment(),
			repository.Like(),
			logger,
		),
	}
}

// Feed returns the feed service.
func (s *Service) Feed() *service.FeedService {
	return s.feed
}
