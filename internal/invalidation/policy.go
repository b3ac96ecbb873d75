package invalidation

import (
	"context"
	"errors"

	"github.com/tripnest/tripnest/internal/cache"
	"go.uber.org/zap"
)

// NewDefaultBus wires the eviction policy of every domain view cache.
// Feed and search namespaces are versioned and rotated as a whole since page
// offsets and keyword matches shift with any content change. Search hits only
// carry the matched entity's ID, title and snippet, so post search rotates on
// post changes and user search on profile changes; comments reach neither.
// Every other view is evicted by the ID it is keyed on.
func NewDefaultBus(services *cache.Services, logger *zap.Logger) *Bus {
	bus := NewBus(logger)

	rotateFeed := func(ctx context.Context, _ Event) error {
		return services.Feed.Rotate(ctx)
	}
	rotateSearchPost := func(ctx context.Context, _ Event) error {
		return services.SearchPost.Rotate(ctx)
	}
	rotateSearchUser := func(ctx context.Context, _ Event) error {
		return services.SearchUser.Rotate(ctx)
	}
	evictPostDetail := func(ctx context.Context, e Event) error {
		return services.PostDetail.Evict(ctx, e.PostID)
	}
	evictComments := func(ctx context.Context, e Event) error {
		return services.Comments.Evict(ctx, e.PostID)
	}
	evictAuthorProfile := func(ctx context.Context, e Event) error {
		if e.AuthorID == 0 {
			return nil
		}
		return services.UserProfile.Evict(ctx, e.AuthorID)
	}
	evictTripLists := func(ctx context.Context, e Event) error {
		var errs []error
		for _, userID := range affectedUsers(e) {
			if err := services.TripList.Evict(ctx, userID); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	bus.Register(PostCreated, "feed.rotate", rotateFeed)
	bus.Register(PostCreated, "search_post.rotate", rotateSearchPost)
	bus.Register(PostCreated, "user_profile.evict_author", evictAuthorProfile)

	bus.Register(PostUpdated, "feed.rotate", rotateFeed)
	bus.Register(PostUpdated, "search_post.rotate", rotateSearchPost)
	bus.Register(PostUpdated, "post_detail.evict", evictPostDetail)

	bus.Register(PostDeleted, "feed.rotate", rotateFeed)
	bus.Register(PostDeleted, "search_post.rotate", rotateSearchPost)
	bus.Register(PostDeleted, "post_detail.evict", evictPostDetail)
	bus.Register(PostDeleted, "comments.evict", evictComments)
	bus.Register(PostDeleted, "user_profile.evict_author", evictAuthorProfile)

	for _, eventType := range []EventType{CommentCreated, CommentUpdated, CommentDeleted} {
		bus.Register(eventType, "comments.evict", evictComments)
		bus.Register(eventType, "post_detail.evict", evictPostDetail)
	}

	bus.Register(LikeToggled, "post_detail.evict", evictPostDetail)

	bus.Register(ProfileUpdated, "user_profile.evict", func(ctx context.Context, e Event) error {
		return services.UserProfile.Evict(ctx, e.UserID)
	})
	bus.Register(ProfileUpdated, "search_user.rotate", rotateSearchUser)

	for _, eventType := range []EventType{TripCreated, TripUpdated, TripDeleted, TripMembershipChanged} {
		bus.Register(eventType, "trip_list.evict", evictTripLists)
	}

	return bus
}

// affectedUsers returns the distinct users whose trip list an event touches.
func affectedUsers(e Event) []int64 {
	seen := make(map[int64]struct{}, len(e.UserIDs)+1)
	users := make([]int64, 0, len(e.UserIDs)+1)

	for _, id := range append([]int64{e.UserID}, e.UserIDs...) {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}

	return users
}
