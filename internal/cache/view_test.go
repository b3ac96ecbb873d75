package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripnest/internal/cache"
	"github.com/tripnest/tripnest/internal/view"
	"go.uber.org/zap/zaptest"
)

func setupServices(t *testing.T) (*cache.Services, *miniredis.Miniredis) {
	t.Helper()

	store, mr := setupStore(t)
	services := cache.NewServices(store, cache.DefaultTTLs(), nil, zaptest.NewLogger(t))

	return services, mr
}

func TestViewCacheRoundTrip(t *testing.T) {
	t.Parallel()
	services, _ := setupServices(t)
	ctx := t.Context()

	detail := &view.PostDetail{
		FeedItem: view.FeedItem{
			PostID:    42,
			Title:     "Three days in Kyoto",
			CreatedAt: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
			Owner:     view.Owner{ID: 7, Nickname: "mika"},
			Trip:      &view.TripRef{ID: 3, Title: "Kansai spring"},
			LikeCount: 5,
		},
		Content: "Fushimi Inari at dawn.",
		Images:  []*view.Media{{URL: "https://img.example/1.jpg", Position: 0}},
	}

	_, found := services.PostDetail.Get(ctx, 42)
	assert.False(t, found)

	require.NoError(t, services.PostDetail.Put(ctx, 42, detail))

	got, found := services.PostDetail.Get(ctx, 42)
	require.True(t, found)
	assert.Equal(t, detail, got)
}

func TestViewCacheAppliesTTLClass(t *testing.T) {
	t.Parallel()
	services, mr := setupServices(t)
	ctx := t.Context()

	require.NoError(t, services.PostDetail.Put(ctx, 1, &view.PostDetail{}))
	require.NoError(t, services.TripList.Put(ctx, 1, &view.TripList{UserID: 1}))
	require.NoError(t, services.Route.Put(ctx, cache.RouteParams{Mode: "walk"}, &view.RouteInfo{Mode: "walk"}))

	assert.Equal(t, cache.PostDetailTTL, mr.TTL("post:detail:1"))
	assert.Equal(t, cache.TripListTTL, mr.TTL("trip:list:user:1"))
	assert.Equal(t, cache.Permanent, services.Route.Class())
	assert.Zero(t, services.Route.TTL())

	mr.FastForward(cache.PostDetailTTL + time.Second)

	_, found := services.PostDetail.Get(ctx, 1)
	assert.False(t, found, "post detail should expire")

	_, found = services.TripList.Get(ctx, 1)
	assert.True(t, found, "trip list outlives post detail")

	mr.FastForward(365 * 24 * time.Hour)

	_, found = services.Route.Get(ctx, cache.RouteParams{Mode: "walk"})
	assert.True(t, found, "permanent entries never expire")
}

func TestViewCacheEvictIsPrecise(t *testing.T) {
	t.Parallel()
	services, _ := setupServices(t)
	ctx := t.Context()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, services.Comments.Put(ctx, id, &view.CommentTree{PostID: id}))
	}

	require.NoError(t, services.Comments.Evict(ctx, 2))
	require.NoError(t, services.Comments.Evict(ctx, 2), "evicting twice is not an error")

	_, found := services.Comments.Get(ctx, 2)
	assert.False(t, found)

	for _, id := range []int64{1, 3} {
		tree, found := services.Comments.Get(ctx, id)
		require.True(t, found)
		assert.Equal(t, id, tree.PostID)
	}
}

func TestViewCacheCorruptPayloadIsMiss(t *testing.T) {
	t.Parallel()
	services, mr := setupServices(t)
	ctx := t.Context()

	require.NoError(t, mr.Set("user:profile:9", "{not json"))

	_, found := services.UserProfile.Get(ctx, 9)
	assert.False(t, found)

	var loads int
	profile, err := services.UserProfile.GetOrLoad(ctx, 9, func(context.Context) (*view.UserProfile, error) {
		loads++
		return &view.UserProfile{Owner: view.Owner{ID: 9, Nickname: "ren"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
	assert.Equal(t, "ren", profile.Nickname)

	// The reload overwrote the corrupt payload
	cached, found := services.UserProfile.Get(ctx, 9)
	require.True(t, found)
	assert.Equal(t, int64(9), cached.ID)
}

func TestViewCacheRotateVersionedNamespace(t *testing.T) {
	t.Parallel()
	services, mr := setupServices(t)
	ctx := t.Context()

	params := cache.FeedParams{Page: 1, Size: 10}
	require.NoError(t, services.Feed.Put(ctx, params, &view.FeedPage{Page: 1, Size: 10, Total: 3}))
	assert.True(t, mr.Exists("feed:v:0:page:1:size:10"))

	_, found := services.Feed.Get(ctx, params)
	require.True(t, found)

	require.NoError(t, services.Feed.Rotate(ctx))

	_, found = services.Feed.Get(ctx, params)
	assert.False(t, found, "rotation hides every previous page")

	require.NoError(t, services.Feed.Put(ctx, params, &view.FeedPage{Page: 1, Size: 10, Total: 4}))
	page, found := services.Feed.Get(ctx, params)
	require.True(t, found)
	assert.Equal(t, int64(4), page.Total)

	// Stale generation is left for TTL expiry
	mr.FastForward(cache.FeedTTL + time.Second)
	assert.False(t, mr.Exists("feed:v:0:page:1:size:10"))
}

func TestViewCacheStatsCountsLiveGeneration(t *testing.T) {
	t.Parallel()
	services, _ := setupServices(t)
	ctx := t.Context()

	require.NoError(t, services.Feed.Rotate(ctx))

	count, err := services.Feed.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "the generation key is not an entry")

	require.NoError(t, services.Feed.Put(ctx, cache.FeedParams{Page: 1, Size: 10}, &view.FeedPage{}))
	require.NoError(t, services.Feed.Put(ctx, cache.FeedParams{Page: 2, Size: 10}, &view.FeedPage{}))

	count, err = services.Feed.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, services.Feed.Rotate(ctx))

	count, err = services.Feed.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rotated pages are unreachable")
}

func TestViewCacheRotateUnversionedEvictsAll(t *testing.T) {
	t.Parallel()
	services, _ := setupServices(t)
	ctx := t.Context()

	require.NoError(t, services.TripList.Put(ctx, 1, &view.TripList{UserID: 1}))
	require.NoError(t, services.TripList.Put(ctx, 2, &view.TripList{UserID: 2}))
	require.NoError(t, services.PostDetail.Put(ctx, 1, &view.PostDetail{}))

	require.NoError(t, services.TripList.Rotate(ctx))

	count, err := services.TripList.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, found := services.PostDetail.Get(ctx, 1)
	assert.True(t, found, "other scopes are untouched")
}

func TestViewCacheSearchKeywordNormalization(t *testing.T) {
	t.Parallel()
	services, _ := setupServices(t)
	ctx := t.Context()

	require.NoError(t, services.SearchPost.Put(ctx,
		cache.SearchParams{Keyword: "Kyoto  Temples", Page: 1, Size: 20},
		&view.SearchResult{Keyword: "kyoto temples", Total: 2}))

	result, found := services.SearchPost.Get(ctx, cache.SearchParams{Keyword: " kyoto temples ", Page: 1, Size: 20})
	require.True(t, found)
	assert.Equal(t, int64(2), result.Total)

	_, found = services.SearchUser.Get(ctx, cache.SearchParams{Keyword: "kyoto temples", Page: 1, Size: 20})
	assert.False(t, found, "post and user search never share entries")
}

func TestViewCacheGetOrLoad(t *testing.T) {
	t.Parallel()

	t.Run("loads once then serves from cache", func(t *testing.T) {
		t.Parallel()
		services, _ := setupServices(t)
		ctx := t.Context()

		var loads atomic.Int32
		load := func(context.Context) (*view.TripList, error) {
			loads.Add(1)
			return &view.TripList{UserID: 5}, nil
		}

		for range 3 {
			list, err := services.TripList.GetOrLoad(ctx, 5, load)
			require.NoError(t, err)
			assert.Equal(t, int64(5), list.UserID)
		}

		assert.Equal(t, int32(1), loads.Load())
	})

	t.Run("loader errors are returned and not cached", func(t *testing.T) {
		t.Parallel()
		services, _ := setupServices(t)
		ctx := t.Context()

		errDown := errors.New("database unavailable")
		_, err := services.TripList.GetOrLoad(ctx, 5, func(context.Context) (*view.TripList, error) {
			return nil, errDown
		})
		require.ErrorIs(t, err, errDown)

		_, found := services.TripList.Get(ctx, 5)
		assert.False(t, found)
	})

	t.Run("nil loader", func(t *testing.T) {
		t.Parallel()
		services, _ := setupServices(t)

		_, err := services.TripList.GetOrLoad(t.Context(), 5, nil)
		require.ErrorIs(t, err, cache.ErrNoLoader)
	})

	t.Run("concurrent misses share a load", func(t *testing.T) {
		t.Parallel()
		services, _ := setupServices(t)
		ctx := t.Context()

		var loads atomic.Int32
		release := make(chan struct{})
		load := func(context.Context) (*view.LLMResponse, error) {
			loads.Add(1)
			<-release
			return &view.LLMResponse{Model: "m", Content: "itinerary"}, nil
		}

		params := cache.LLMParams{Model: "m", Prompt: "plan two days in Lisbon"}

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := services.LLM.GetOrLoad(ctx, params, load)
				assert.NoError(t, err)
				assert.Equal(t, "itinerary", resp.Content)
			}()
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.LessOrEqual(t, loads.Load(), int32(8))
		assert.GreaterOrEqual(t, loads.Load(), int32(1))
	})
}

// failingStore is a Store whose every call fails.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errStoreDown }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (failingStore) Delete(context.Context, string) (bool, error)        { return false, errStoreDown }
func (failingStore) DeleteByPrefix(context.Context, string) (int, error) { return 0, errStoreDown }
func (failingStore) CountByPrefix(context.Context, string) (int, error)  { return 0, errStoreDown }

func TestViewCacheStoreFailureIsMiss(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	services := cache.NewServices(failingStore{}, cache.DefaultTTLs(), nil, zaptest.NewLogger(t))

	_, found := services.PostDetail.Get(ctx, 1)
	assert.False(t, found)

	_, found = services.Feed.Get(ctx, cache.FeedParams{Page: 1, Size: 10})
	assert.False(t, found)

	detail, err := services.PostDetail.GetOrLoad(ctx, 1, func(context.Context) (*view.PostDetail, error) {
		return &view.PostDetail{Content: "loaded"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "loaded", detail.Content)

	page, err := services.Feed.GetOrLoad(ctx, cache.FeedParams{Page: 1, Size: 10}, func(context.Context) (*view.FeedPage, error) {
		return &view.FeedPage{Page: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)

	require.ErrorIs(t, services.PostDetail.Put(ctx, 1, &view.PostDetail{}), errStoreDown)
	require.ErrorIs(t, services.PostDetail.Evict(ctx, 1), errStoreDown)
}
