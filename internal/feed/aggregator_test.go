package feed_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripnest/internal/cache"
	"github.com/tripnest/tripnest/internal/counter"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/tripnest/tripnest/internal/feed"
	"go.uber.org/zap/zaptest"
)

// memorySource serves feed tables from memory and counts every query.
type memorySource struct {
	mu       sync.Mutex
	posts    []*types.Post
	users    map[int64]*types.User
	trips    map[int64]*types.Trip
	images   map[int64][]*types.PostImage
	comments map[int64]int64
	likes    map[int64]int64
	queries  map[string]int
}

func newMemorySource() *memorySource {
	return &memorySource{
		users:    make(map[int64]*types.User),
		trips:    make(map[int64]*types.Trip),
		images:   make(map[int64][]*types.PostImage),
		comments: make(map[int64]int64),
		likes:    make(map[int64]int64),
		queries:  make(map[string]int),
	}
}

func (m *memorySource) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[name]++
}

func (m *memorySource) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, count := range m.queries {
		n += count
	}
	return n
}

// populate adds n posts, newest last. Odd posts belong to a trip.
func (m *memorySource) populate(n int) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		id := int64(i)
		ownerID := int64(i%7 + 1)
		tripID := int64(0)
		if i%2 == 1 {
			tripID = int64(i%5 + 1)
		}

		m.posts = append(m.posts, &types.Post{
			ID:        id,
			UserID:    ownerID,
			TripID:    tripID,
			Title:     fmt.Sprintf("post %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		m.users[ownerID] = &types.User{ID: ownerID, Nickname: fmt.Sprintf("user%d", ownerID)}
		if tripID != 0 {
			m.trips[tripID] = &types.Trip{ID: tripID, OwnerID: ownerID, Title: fmt.Sprintf("trip %d", tripID)}
		}
		if i%3 == 0 {
			m.images[id] = []*types.PostImage{
				{PostID: id, URL: fmt.Sprintf("https://img.example/%d/1.jpg", i), Position: 1},
				{PostID: id, URL: fmt.Sprintf("https://img.example/%d/0.jpg", i), Position: 0},
			}
		}
		m.comments[id] = int64(i % 4)
		m.likes[id] = int64(i % 6)
	}
}

func (m *memorySource) PostPage(_ context.Context, page, size int) ([]*types.Post, int64, error) {
	m.record("posts")

	// Newest first
	ordered := make([]*types.Post, 0, len(m.posts))
	for i := len(m.posts) - 1; i >= 0; i-- {
		ordered = append(ordered, m.posts[i])
	}

	start := min((page-1)*size, len(ordered))
	end := min(start+size, len(ordered))
	return ordered[start:end], int64(len(ordered)), nil
}

func (m *memorySource) UsersByIDs(_ context.Context, ids []int64) (map[int64]*types.User, error) {
	m.record("users")
	result := make(map[int64]*types.User, len(ids))
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

func (m *memorySource) TripsByIDs(_ context.Context, ids []int64) (map[int64]*types.Trip, error) {
	m.record("trips")
	result := make(map[int64]*types.Trip, len(ids))
	for _, id := range ids {
		if trip, ok := m.trips[id]; ok {
			result[id] = trip
		}
	}
	return result, nil
}

func (m *memorySource) CoverImages(_ context.Context, postIDs []int64) (map[int64]*types.PostImage, error) {
	m.record("covers")
	result := make(map[int64]*types.PostImage)
	for _, id := range postIDs {
		for _, image := range m.images[id] {
			if current, ok := result[id]; !ok || image.Position < current.Position {
				result[id] = image
			}
		}
	}
	return result, nil
}

func (m *memorySource) CommentCounts(_ context.Context, postIDs []int64) (map[int64]int64, error) {
	m.record("comments")
	result := make(map[int64]int64)
	for _, id := range postIDs {
		if n := m.comments[id]; n > 0 {
			result[id] = n
		}
	}
	return result, nil
}

func (m *memorySource) LikeCounts(_ context.Context, postIDs []int64) (map[int64]int64, error) {
	m.record("likes")
	result := make(map[int64]int64)
	for _, id := range postIDs {
		if n := m.likes[id]; n > 0 {
			result[id] = n
		}
	}
	return result, nil
}

// fakeCounters serves counts from memory or fails with err.
type fakeCounters struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCounters) Counts(_ context.Context, postIDs []int64) (map[int64]counter.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	result := make(map[int64]counter.Counts, len(postIDs))
	for _, id := range postIDs {
		result[id] = counter.Counts{Likes: id * 2, Views: id * 100}
	}
	return result, nil
}

func TestPageQueryCountIsConstant(t *testing.T) {
	t.Parallel()

	queriesBySize := make(map[int]int)
	for _, size := range []int{1, 10, 100} {
		source := newMemorySource()
		source.populate(size)
		counters := &fakeCounters{}

		aggregator := feed.NewAggregator(source, counters, nil, zaptest.NewLogger(t))

		page, err := aggregator.Page(t.Context(), 1, size)
		require.NoError(t, err)
		require.Len(t, page.Items, size)

		queriesBySize[size] = source.total() + counters.calls
	}

	assert.Equal(t, queriesBySize[1], queriesBySize[10])
	assert.Equal(t, queriesBySize[10], queriesBySize[100])
	assert.LessOrEqual(t, queriesBySize[100], 6)
}

func TestPageAssemblesItems(t *testing.T) {
	t.Parallel()

	source := newMemorySource()
	source.populate(12)
	aggregator := feed.NewAggregator(source, &fakeCounters{}, nil, zaptest.NewLogger(t))

	page, err := aggregator.Page(t.Context(), 1, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(12), page.Total)
	require.Len(t, page.Items, 5)

	// Newest first
	first := page.Items[0]
	assert.Equal(t, int64(12), first.PostID)
	assert.Equal(t, int64(12%7+1), first.Owner.ID)
	assert.Nil(t, first.Trip, "posts without a trip have no trip reference")
	require.NotNil(t, first.Cover)
	assert.Equal(t, "https://img.example/12/0.jpg", first.Cover.URL)
	assert.Equal(t, int64(0), first.CommentCount)
	assert.Equal(t, int64(24), first.LikeCount)
	assert.Equal(t, int64(1200), first.ViewCount)

	second := page.Items[1]
	assert.Equal(t, int64(11), second.PostID)
	require.NotNil(t, second.Trip)
	assert.Equal(t, int64(11%5+1), second.Trip.ID)
	assert.Nil(t, second.Cover)
	assert.Equal(t, int64(3), second.CommentCount)

	last, err := aggregator.Page(t.Context(), 3, 5)
	require.NoError(t, err)
	assert.Len(t, last.Items, 2)

	empty, err := aggregator.Page(t.Context(), 9, 5)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.NotNil(t, empty.Items)
}

func TestPageSurfacesMissingRelations(t *testing.T) {
	t.Parallel()

	t.Run("owner", func(t *testing.T) {
		t.Parallel()
		source := newMemorySource()
		source.populate(3)
		delete(source.users, int64(2%7+1))

		_, err := feed.NewAggregator(source, nil, nil, zaptest.NewLogger(t)).Page(t.Context(), 1, 10)
		require.ErrorIs(t, err, feed.ErrMissingRelation)
		assert.Contains(t, err.Error(), "post 2")
	})

	t.Run("trip", func(t *testing.T) {
		t.Parallel()
		source := newMemorySource()
		source.populate(3)
		delete(source.trips, int64(3%5+1))

		_, err := feed.NewAggregator(source, nil, nil, zaptest.NewLogger(t)).Page(t.Context(), 1, 10)
		require.ErrorIs(t, err, feed.ErrMissingRelation)
	})
}

func TestPageFallsBackToDurableLikeCounts(t *testing.T) {
	t.Parallel()

	source := newMemorySource()
	source.populate(6)
	counters := &fakeCounters{err: errors.New("redis down")}

	page, err := feed.NewAggregator(source, counters, nil, zaptest.NewLogger(t)).Page(t.Context(), 1, 6)
	require.NoError(t, err)

	for _, item := range page.Items {
		assert.Equal(t, item.PostID%6, item.LikeCount)
		assert.Zero(t, item.ViewCount)
	}
	assert.Equal(t, 1, source.queries["likes"])
}

func TestPageRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	aggregator := feed.NewAggregator(newMemorySource(), nil, nil, zaptest.NewLogger(t))

	for _, tt := range []struct{ page, size int }{{0, 10}, {1, 0}, {1, feed.MaxPageSize + 1}, {-1, 5}} {
		_, err := aggregator.Page(t.Context(), tt.page, tt.size)
		require.ErrorIs(t, err, feed.ErrInvalidPage)
	}
}

func TestCachedServesRepeatedPagesFromCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	logger := zaptest.NewLogger(t)
	services := cache.NewServices(cache.NewRedisStore(client, logger), cache.DefaultTTLs(), nil, logger)

	source := newMemorySource()
	source.populate(4)
	aggregator := feed.NewAggregator(source, &fakeCounters{}, services.Feed, logger)

	first, err := aggregator.Cached(t.Context(), 1, 10)
	require.NoError(t, err)

	second, err := aggregator.Cached(t.Context(), 1, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.queries["posts"])

	require.NoError(t, services.Feed.Rotate(t.Context()))

	_, err = aggregator.Cached(t.Context(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, source.queries["posts"])
}

// sourceLikes serves the like totals of a memorySource as durable relations.
type sourceLikes struct {
	source *memorySource
}

func (s sourceLikes) AddLike(context.Context, int64, int64) (bool, error)    { return false, nil }
func (s sourceLikes) RemoveLike(context.Context, int64, int64) (bool, error) { return false, nil }
func (s sourceLikes) IsLiked(context.Context, int64, int64) (bool, error)    { return false, nil }

func (s sourceLikes) CountLikes(_ context.Context, postIDs ...int64) (map[int64]int64, error) {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()
	result := make(map[int64]int64)
	for _, id := range postIDs {
		if n := s.source.likes[id]; n > 0 {
			result[id] = n
		}
	}
	return result, nil
}

// viewSummaries is a read-only counter summary holding view counts.
type viewSummaries map[int64]int64

func (v viewSummaries) GetSummaries(_ context.Context, postIDs ...int64) (map[int64]*types.PostCounter, error) {
	result := make(map[int64]*types.PostCounter)
	for _, id := range postIDs {
		if views, ok := v[id]; ok {
			result[id] = &types.PostCounter{PostID: id, ViewCount: views}
		}
	}
	return result, nil
}

func (v viewSummaries) UpsertSummaries(context.Context, []*types.PostCounter) error { return nil }

func TestPageWithRedisCounters(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	logger := zaptest.NewLogger(t)
	source := newMemorySource()
	source.populate(20)

	counters := counter.NewService(client, sourceLikes{source}, viewSummaries{19: 33}, counter.Options{}, nil, logger)
	aggregator := feed.NewAggregator(source, counters, nil, logger)

	// Warm counters for the newest post only; the rest spread across hash slots
	mr.HSet(counter.LikeKey(20), counter.LikeCountField, "50")
	require.NoError(t, mr.Set(counter.ViewKey(20), "700"))

	page, err := aggregator.Page(t.Context(), 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 20)

	byID := make(map[int64]int64, len(page.Items))
	for _, item := range page.Items {
		byID[item.PostID] = item.LikeCount
	}

	assert.Equal(t, int64(50), page.Items[0].LikeCount)
	assert.Equal(t, int64(700), page.Items[0].ViewCount)
	assert.Equal(t, int64(19%6), page.Items[1].LikeCount)
	assert.Equal(t, int64(33), page.Items[1].ViewCount)
	for id := int64(1); id < 20; id++ {
		assert.Equal(t, id%6, byID[id], "post %d", id)
	}
	assert.Zero(t, source.queries["likes"], "the durable fallback is not used")

	// Cold counters were seeded for the next page load
	assert.Equal(t, "1", mr.HGet(counter.LikeKey(19), counter.LikeCountField))
	views, err := mr.Get(counter.ViewKey(19))
	require.NoError(t, err)
	assert.Equal(t, "33", views)

	t.Run("redis down", func(t *testing.T) {
		mr.SetError("ERR backend unavailable")
		defer mr.SetError("")

		page, err := aggregator.Page(t.Context(), 1, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(20%6), page.Items[0].LikeCount)
		assert.Equal(t, 1, source.queries["likes"])
	})
}
