// Package counter keeps the like and view counters of posts in Redis and
// reconciles them with the durable like relations and counter summary.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"github.com/tripnest/tripnest/internal/database/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultViewDedupWindow is how long a viewer's marker suppresses repeat views.
	DefaultViewDedupWindow = 24 * time.Hour

	// DefaultChunkSize is the number of posts written per reconciliation batch.
	DefaultChunkSize = 500

	// DefaultConcurrency is the number of push batches written in parallel.
	DefaultConcurrency = 4

	// DefaultWriteGuard is how long an unfinished like write blocks seeding
	// before it is considered crashed.
	DefaultWriteGuard = 30 * time.Second

	// seedAttempts bounds the adjust/seed loop when counters keep vanishing.
	seedAttempts = 3
)

// ErrSeedContention is returned when a counter could not be adjusted or seeded.
var ErrSeedContention = errors.New("counter contended while seeding")

// LikeRepository is the durable store of like relations.
type LikeRepository interface {
	// AddLike makes the relation live and reports whether it was absent or deleted before.
	AddLike(ctx context.Context, postID, userID int64) (bool, error)
	// RemoveLike soft-deletes a live relation and reports whether one existed.
	RemoveLike(ctx context.Context, postID, userID int64) (bool, error)
	// IsLiked reports whether a live relation exists.
	IsLiked(ctx context.Context, postID, userID int64) (bool, error)
	// CountLikes returns live relation counts per post. Without IDs it covers
	// every post with at least one live relation. Posts without live relations
	// are omitted.
	CountLikes(ctx context.Context, postIDs ...int64) (map[int64]int64, error)
}

// SummaryRepository persists the durable counter summary.
type SummaryRepository interface {
	// GetSummaries returns summary rows by post. Without IDs it returns every row.
	GetSummaries(ctx context.Context, postIDs ...int64) (map[int64]*types.PostCounter, error)
	// UpsertSummaries inserts or overwrites the given rows.
	UpsertSummaries(ctx context.Context, counters []*types.PostCounter) error
}

// State is the like state of a post for one user.
type State struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"count"`
}

// ViewState is the outcome of recording a view.
type ViewState struct {
	Counted bool  `json:"counted"`
	Count   int64 `json:"count"`
}

// Counts holds both counters of a post.
type Counts struct {
	Likes int64 `json:"likes"`
	Views int64 `json:"views"`
}

// Options tunes the counter service.
type Options struct {
	ViewDedupWindow time.Duration
	ChunkSize       int
	Concurrency     int
	WriteGuard      time.Duration

	// OnLikeToggled runs after a like or unlike changed the durable relation.
	OnLikeToggled func(ctx context.Context, postID int64)
}

// Service serves like and view counters from Redis with durable fallbacks.
//
// A like counter is a hash holding the count next to a guard of in-flight
// writes. Writers mark the guard before touching the durable relation and
// release it with their delta afterwards, and a count is only ever seeded
// from durable state when no write began or finished since it was read.
// View counters are plain integers seeded from the summary.
type Service struct {
	client    rueidis.Client
	likes     LikeRepository
	summaries SummaryRepository
	opts      Options
	scripts   scripts
	metrics   *Metrics
	group     singleflight.Group
	syncMu    sync.Mutex
	logger    *zap.Logger
}

// NewService creates a counter service over the counter Redis database.
func NewService(
	client rueidis.Client, likes LikeRepository, summaries SummaryRepository,
	opts Options, metrics *Metrics, logger *zap.Logger,
) *Service {
	if opts.ViewDedupWindow <= 0 {
		opts.ViewDedupWindow = DefaultViewDedupWindow
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.WriteGuard <= 0 {
		opts.WriteGuard = DefaultWriteGuard
	}

	return &Service{
		client:    client,
		likes:     likes,
		summaries: summaries,
		opts:      opts,
		scripts:   newScripts(),
		metrics:   metrics,
		logger:    logger.Named("counter"),
	}
}

// Like records that userID likes postID. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, postID, userID int64) (State, error) {
	s.beginLike(ctx, postID)

	changed, err := s.likes.AddLike(ctx, postID, userID)
	if err != nil {
		s.abortLike(ctx, postID)
		return State{}, fmt.Errorf("failed to like post %d: %w", postID, err)
	}

	return s.toggled(ctx, postID, true, changed)
}

// Unlike removes the like of userID on postID. Unliking a post that is not
// liked is a no-op.
func (s *Service) Unlike(ctx context.Context, postID, userID int64) (State, error) {
	s.beginLike(ctx, postID)

	changed, err := s.likes.RemoveLike(ctx, postID, userID)
	if err != nil {
		s.abortLike(ctx, postID)
		return State{}, fmt.Errorf("failed to unlike post %d: %w", postID, err)
	}

	return s.toggled(ctx, postID, false, changed)
}

// IsLiked reports whether userID currently likes postID.
func (s *Service) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	liked, err := s.likes.IsLiked(ctx, postID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check like on post %d: %w", postID, err)
	}
	return liked, nil
}

// LikeCount returns the like count of a post, seeding a missing fast counter
// from the durable relations when no write is in flight.
func (s *Service) LikeCount(ctx context.Context, postID int64) (int64, error) {
	ids := []int64{postID}

	snapshots, err := s.snapshotLikes(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to read counter, serving durable value",
			zap.Int64("postID", postID),
			zap.Error(err))
		return s.durableLikes(ctx, postID)
	}

	if snapshot := snapshots[postID]; snapshot.found {
		return snapshot.count, nil
	}

	counts, err := s.settleLikes(ctx, ids, snapshots)
	if err != nil {
		return 0, err
	}
	return counts[postID], nil
}

// ViewCount returns the view count of a post, seeding a missing fast counter
// from the durable summary.
func (s *Service) ViewCount(ctx context.Context, postID int64) (int64, error) {
	key := ViewKey(postID)

	value, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsInt64()
	if err == nil {
		return s.clampRead(ctx, key, "view", value), nil
	}

	if !rueidis.IsRedisNil(err) {
		s.logger.Warn("Failed to read counter, serving durable value",
			zap.String("key", key),
			zap.Error(err))
		return s.durableViews(ctx, postID)
	}

	count, err := s.durableViews(ctx, postID)
	if err != nil {
		return 0, err
	}

	if _, err := s.setIfAbsent(ctx, key, count); err != nil {
		s.logger.Warn("Failed to seed counter", zap.String("key", key), zap.Error(err))
	}

	return count, nil
}

// View records a view of postID. A viewerID of zero is anonymous and always
// counted; other viewers are counted once per dedup window.
func (s *Service) View(ctx context.Context, postID, viewerID int64) (ViewState, error) {
	if viewerID != 0 {
		cmd := s.client.B().Set().Key(MarkerKey(postID, viewerID)).Value("1").Nx().Ex(s.opts.ViewDedupWindow).Build()
		err := s.client.Do(ctx, cmd).Error()

		switch {
		case rueidis.IsRedisNil(err):
			count, err := s.ViewCount(ctx, postID)
			return ViewState{Count: count}, err
		case err != nil:
			s.logger.Warn("Failed to set view marker, view not counted",
				zap.Int64("postID", postID),
				zap.Error(err))
			count, err := s.durableViews(ctx, postID)
			return ViewState{Count: count}, err
		}
	}

	count, err := s.incrementView(ctx, postID)
	if err != nil {
		s.logger.Warn("Failed to increment view counter, view not counted",
			zap.Int64("postID", postID),
			zap.Error(err))

		// The viewer has to be able to count once the counter recovers
		if viewerID != 0 {
			s.releaseMarker(ctx, postID, viewerID)
		}

		count, err := s.durableViews(ctx, postID)
		return ViewState{Count: count}, err
	}

	return ViewState{Counted: true, Count: count}, nil
}

// Counts returns both counters for every post in one pipeline per counter
// type. Missing fast counters are filled from durable state in one batch each
// and seeded for later reads.
func (s *Service) Counts(ctx context.Context, postIDs []int64) (map[int64]Counts, error) {
	result := make(map[int64]Counts, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	snapshots, err := s.snapshotLikes(ctx, postIDs)
	if err != nil {
		return nil, err
	}

	views, missingViews, err := s.readViews(ctx, postIDs)
	if err != nil {
		return nil, err
	}

	likes := make(map[int64]int64, len(postIDs))
	var missingLikes []int64
	for _, id := range postIDs {
		if snapshot := snapshots[id]; snapshot.found {
			likes[id] = snapshot.count
			continue
		}
		missingLikes = append(missingLikes, id)
	}

	if len(missingLikes) > 0 {
		settled, err := s.settleLikes(ctx, missingLikes, snapshots)
		if err != nil {
			return nil, err
		}
		for id, count := range settled {
			likes[id] = count
		}
	}

	if len(missingViews) > 0 {
		summaries, err := s.summaries.GetSummaries(ctx, missingViews...)
		if err != nil {
			return nil, fmt.Errorf("failed to load counter summaries: %w", err)
		}

		seeds := make(map[int64]int64, len(missingViews))
		for _, id := range missingViews {
			var count int64
			if summary, ok := summaries[id]; ok {
				count = summary.ViewCount
			}
			views[id] = count
			seeds[id] = count
		}
		s.seedViews(ctx, seeds)
	}

	for _, id := range postIDs {
		result[id] = Counts{Likes: likes[id], Views: views[id]}
	}

	return result, nil
}

// incrementView adds one view to an existing counter or seeds a missing one
// from the summary plus this view.
func (s *Service) incrementView(ctx context.Context, postID int64) (int64, error) {
	key := ViewKey(postID)

	for range seedAttempts {
		value, found, err := s.runAdjust(ctx, key, 1)
		if err != nil {
			return 0, err
		}
		if found {
			return value, nil
		}

		views, err := s.durableViews(ctx, postID)
		if err != nil {
			return 0, err
		}
		initial := max(views, 0) + 1

		set, err := s.setIfAbsent(ctx, key, initial)
		if err != nil {
			return 0, err
		}
		if set {
			return initial, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrSeedContention, key)
}

// runAdjust executes the view adjust script and reports whether the counter existed.
func (s *Service) runAdjust(ctx context.Context, key string, delta int64) (int64, bool, error) {
	args := []string{strconv.FormatInt(delta, 10)}

	values, err := s.scripts.adjustView.Exec(ctx, s.client, []string{key}, args).AsIntSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to adjust %s: %w", key, err)
	}

	if len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected adjust reply for %s: %v", key, values)
	}

	if values[1] == 1 {
		s.clamped(ctx, key, "view", delta)
	}

	return values[0], true, nil
}

// releaseMarker drops a viewer's dedup marker after the view failed to count.
func (s *Service) releaseMarker(ctx context.Context, postID, viewerID int64) {
	key := MarkerKey(postID, viewerID)
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		s.logger.Warn("Failed to release view marker",
			zap.String("key", key),
			zap.Error(err))
	}
}

// readViews reads view counters with the slot-aware MGET helper. IDs whose
// counter is missing or unreadable are returned separately.
func (s *Service) readViews(ctx context.Context, postIDs []int64) (map[int64]int64, []int64, error) {
	keys := viewKeys(postIDs)

	messages, err := rueidis.MGet(s.client, ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read view counters: %w", err)
	}

	found := make(map[int64]int64, len(postIDs))
	var missing []int64

	for i, id := range postIDs {
		message, ok := messages[keys[i]]
		if !ok || message.IsNil() {
			missing = append(missing, id)
			continue
		}
		if err := message.Error(); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", keys[i], err)
		}

		n, err := message.AsInt64()
		if err != nil {
			s.logger.Warn("Unreadable counter value", zap.String("key", keys[i]), zap.Error(err))
			missing = append(missing, id)
			continue
		}

		found[id] = s.clampRead(ctx, keys[i], "view", n)
	}

	return found, missing, nil
}

// setIfAbsent writes value to key unless it already exists.
func (s *Service) setIfAbsent(ctx context.Context, key string, value int64) (bool, error) {
	err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(strconv.FormatInt(value, 10)).Nx().Build()).Error()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to seed %s: %w", key, err)
	}
	return true, nil
}

// seedViews seeds missing view counters in one pipeline, logging failures.
func (s *Service) seedViews(ctx context.Context, values map[int64]int64) {
	cmds := make(rueidis.Commands, 0, len(values))
	for id, value := range values {
		cmds = append(cmds, s.client.B().Set().Key(ViewKey(id)).Value(strconv.FormatInt(value, 10)).Nx().Build())
	}

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil && !rueidis.IsRedisNil(err) {
			s.logger.Warn("Failed to seed counter", zap.Error(err))
		}
	}
}

// clampRead reports a negative counter found on a read and serves zero instead.
func (s *Service) clampRead(ctx context.Context, key, kind string, value int64) int64 {
	if value >= 0 {
		return value
	}

	s.metrics.clamp(ctx, kind)
	s.logger.Error("Negative counter read, serving zero",
		zap.String("key", key),
		zap.Int64("value", value))
	return 0
}

// clamped reports a counter that a write drove below zero.
func (s *Service) clamped(ctx context.Context, key, kind string, delta int64) {
	s.metrics.clamp(ctx, kind)
	s.logger.Error("Counter went negative, clamped to zero",
		zap.String("key", key),
		zap.Int64("delta", delta))
}

// durableLikes returns the live relation count of a post.
func (s *Service) durableLikes(ctx context.Context, postID int64) (int64, error) {
	counts, err := s.likes.CountLikes(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("failed to count durable likes of post %d: %w", postID, err)
	}
	return counts[postID], nil
}

// durableViews returns the summarized view count of a post.
func (s *Service) durableViews(ctx context.Context, postID int64) (int64, error) {
	summaries, err := s.summaries.GetSummaries(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("failed to load counter summary of post %d: %w", postID, err)
	}

	if summary, ok := summaries[postID]; ok {
		return summary.ViewCount, nil
	}
	return 0, nil
}
