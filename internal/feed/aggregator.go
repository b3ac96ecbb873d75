// Package feed assembles social feed pages from batched queries so the
// number of round trips stays constant regardless of page size.
package feed

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/tripnest/tripnest/internal/cache"
	"github.com/tripnest/tripnest/internal/counter"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/tripnest/tripnest/internal/view"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxPageSize caps the number of posts in one feed page.
const MaxPageSize = 100

var (
	// ErrMissingRelation means a post references an owner or trip that does not exist.
	ErrMissingRelation = errors.New("feed: missing related entity")
	// ErrInvalidPage is returned for non-positive pages or sizes out of range.
	ErrInvalidPage = errors.New("feed: invalid page")
)

// Source is the batched read side of the feed tables. Every method is one query.
type Source interface {
	// PostPage returns one page of live posts, newest first, and the total count.
	PostPage(ctx context.Context, page, size int) ([]*types.Post, int64, error)
	UsersByIDs(ctx context.Context, ids []int64) (map[int64]*types.User, error)
	TripsByIDs(ctx context.Context, ids []int64) (map[int64]*types.Trip, error)
	// CoverImages returns the lowest positioned image of each post.
	CoverImages(ctx context.Context, postIDs []int64) (map[int64]*types.PostImage, error)
	CommentCounts(ctx context.Context, postIDs []int64) (map[int64]int64, error)
	LikeCounts(ctx context.Context, postIDs []int64) (map[int64]int64, error)
}

// Counters serves like and view counts from the fast counters.
type Counters interface {
	Counts(ctx context.Context, postIDs []int64) (map[int64]counter.Counts, error)
}

// Aggregator builds feed pages.
type Aggregator struct {
	source   Source
	counters Counters
	pages    *cache.ViewCache[cache.FeedParams, *view.FeedPage]
	logger   *zap.Logger
}

// NewAggregator creates an aggregator. counters and pages may be nil, in
// which case like counts come from the source and Cached never caches.
func NewAggregator(
	source Source, counters Counters, pages *cache.ViewCache[cache.FeedParams, *view.FeedPage], logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		source:   source,
		counters: counters,
		pages:    pages,
		logger:   logger.Named("feed"),
	}
}

// Cached returns the page from the feed cache, assembling it on a miss.
func (a *Aggregator) Cached(ctx context.Context, page, size int) (*view.FeedPage, error) {
	if err := validatePage(page, size); err != nil {
		return nil, err
	}

	if a.pages == nil {
		return a.Page(ctx, page, size)
	}

	return a.pages.GetOrLoad(ctx, cache.FeedParams{Page: page, Size: size}, func(ctx context.Context) (*view.FeedPage, error) {
		return a.Page(ctx, page, size)
	})
}

// Page assembles one feed page. Page numbers start at 1.
func (a *Aggregator) Page(ctx context.Context, page, size int) (*view.FeedPage, error) {
	if err := validatePage(page, size); err != nil {
		return nil, err
	}

	posts, total, err := a.source.PostPage(ctx, page, size)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed posts: %w", err)
	}

	result := &view.FeedPage{
		Page:  page,
		Size:  size,
		Total: total,
		Items: make([]*view.FeedItem, 0, len(posts)),
	}

	if len(posts) == 0 {
		return result, nil
	}

	postIDs := make([]int64, len(posts))
	ownerSet := make(map[int64]struct{}, len(posts))
	tripSet := make(map[int64]struct{}, len(posts))
	for i, post := range posts {
		postIDs[i] = post.ID
		ownerSet[post.UserID] = struct{}{}
		if post.TripID != 0 {
			tripSet[post.TripID] = struct{}{}
		}
	}

	var (
		users    map[int64]*types.User
		trips    map[int64]*types.Trip
		covers   map[int64]*types.PostImage
		comments map[int64]int64
		counts   map[int64]counter.Counts
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		users, err = a.source.UsersByIDs(gctx, sortedKeys(ownerSet))
		if err != nil {
			return fmt.Errorf("failed to load post owners: %w", err)
		}
		return nil
	})

	if len(tripSet) > 0 {
		g.Go(func() error {
			var err error
			trips, err = a.source.TripsByIDs(gctx, sortedKeys(tripSet))
			if err != nil {
				return fmt.Errorf("failed to load post trips: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		var err error
		covers, err = a.source.CoverImages(gctx, postIDs)
		if err != nil {
			return fmt.Errorf("failed to load cover images: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		comments, err = a.source.CommentCounts(gctx, postIDs)
		if err != nil {
			return fmt.Errorf("failed to load comment counts: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		counts, err = a.engagement(gctx, postIDs)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, post := range posts {
		owner, ok := users[post.UserID]
		if !ok {
			return nil, fmt.Errorf("%w: owner %d of post %d", ErrMissingRelation, post.UserID, post.ID)
		}

		item := &view.FeedItem{
			PostID:    post.ID,
			Title:     post.Title,
			Summary:   post.Summary,
			CreatedAt: post.CreatedAt,
			Owner: view.Owner{
				ID:        owner.ID,
				Nickname:  owner.Nickname,
				AvatarURL: owner.AvatarURL,
			},
			CommentCount: comments[post.ID],
			LikeCount:    counts[post.ID].Likes,
			ViewCount:    counts[post.ID].Views,
		}

		if post.TripID != 0 {
			trip, ok := trips[post.TripID]
			if !ok {
				return nil, fmt.Errorf("%w: trip %d of post %d", ErrMissingRelation, post.TripID, post.ID)
			}
			item.Trip = &view.TripRef{ID: trip.ID, Title: trip.Title, Destination: trip.Destination}
		}

		if cover, ok := covers[post.ID]; ok {
			item.Cover = &view.Media{URL: cover.URL, Position: cover.Position}
		}

		result.Items = append(result.Items, item)
	}

	return result, nil
}

// engagement returns like and view counts from the fast counters, falling
// back to a grouped like count query when they are unavailable.
func (a *Aggregator) engagement(ctx context.Context, postIDs []int64) (map[int64]counter.Counts, error) {
	if a.counters != nil {
		counts, err := a.counters.Counts(ctx, postIDs)
		if err == nil {
			return counts, nil
		}

		a.logger.Warn("Fast counters unavailable, using durable like counts", zap.Error(err))
	}

	likes, err := a.source.LikeCounts(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load like counts: %w", err)
	}

	counts := make(map[int64]counter.Counts, len(likes))
	for id, n := range likes {
		counts[id] = counter.Counts{Likes: n}
	}
	return counts, nil
}

func validatePage(page, size int) error {
	if page < 1 || size < 1 || size > MaxPageSize {
		return fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, page, size)
	}
	return nil
}

func sortedKeys(set map[int64]struct{}) []int64 {
	return slices.Sorted(maps.Keys(set))
}
