package counter_test

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripnest/internal/counter"
)

func TestSyncFromDurableConvergence(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 7} {
		t.Run(fmt.Sprintf("%d relations", n), func(t *testing.T) {
			t.Parallel()
			f := setup(t)
			ctx := t.Context()

			for userID := range n {
				f.likes.seed(42, int64(userID+1))
			}
			// Stale fast counter from before a cache loss
			f.mr.HSet(counter.LikeKey(42), counter.LikeCountField, "99")

			report, err := f.service.SyncFromDurable(ctx, 42)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Synced)
			assert.Empty(t, report.Failed)

			count, err := f.service.LikeCount(ctx, 42)
			require.NoError(t, err)
			assert.Equal(t, int64(n), count)
		})
	}
}

func TestSyncFromDurableAll(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	f.likes.seed(1, 1, 2, 3)
	f.likes.seed(2, 1)
	f.summaries.put(3, 0, 15)
	f.mr.HSet(counter.LikeKey(4), counter.LikeCountField, "6") // every relation was removed
	require.NoError(t, f.mr.Set(counter.ViewKey(3), "21"))

	report, err := f.service.SyncFromDurable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Synced)

	for postID, want := range map[int64]string{1: "3", 2: "1", 3: "0", 4: "0"} {
		assert.Equal(t, want, f.mr.HGet(counter.LikeKey(postID), counter.LikeCountField), "post %d", postID)
	}

	views, err := f.mr.Get(counter.ViewKey(3))
	require.NoError(t, err)
	assert.Equal(t, "21", views, "existing view counters are not overwritten")

	views, err = f.mr.Get(counter.ViewKey(1))
	require.NoError(t, err)
	assert.Equal(t, "0", views)
}

func TestSyncFromDurableReportsPostsBeingWritten(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	f.likes.seed(1, 1)
	f.likes.seed(2, 1, 2)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	f.mr.HSet(counter.LikeKey(2), counter.LikeCountField, "5", "pending", "1", "epoch", "3", "since", now)

	report, err := f.service.SyncFromDurable(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[2], counter.ErrSeedContention)

	assert.Equal(t, "1", f.mr.HGet(counter.LikeKey(1), counter.LikeCountField))
	assert.Equal(t, "5", f.mr.HGet(counter.LikeKey(2), counter.LikeCountField), "an in-flight write keeps its counter")
}

func TestSyncFromDurableDoesNotLoseConcurrentLike(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	f.likes.seed(3, 1)
	f.mr.HSet(counter.LikeKey(3), counter.LikeCountField, "1")

	// A like lands after the pull counted relations but before it wrote
	f.likes.onCount = func() {
		state, err := f.service.Like(ctx, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), state.Count)
	}

	report, err := f.service.SyncFromDurable(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)

	assert.Equal(t, "2", f.mr.HGet(counter.LikeKey(3), counter.LikeCountField))
}

func TestSyncToDurable(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	for postID := int64(1); postID <= 5; postID++ {
		f.mr.HSet(counter.LikeKey(postID), counter.LikeCountField, strconv.FormatInt(postID, 10))
		require.NoError(t, f.mr.Set(counter.ViewKey(postID), strconv.FormatInt(postID*10, 10)))
	}
	// Only the like counter survived for post 6
	f.mr.HSet(counter.LikeKey(6), counter.LikeCountField, "2")
	f.summaries.put(6, 1, 60)
	// Markers are not counters
	require.NoError(t, f.mr.Set(counter.MarkerKey(1, 9), "1"))

	report, err := f.service.SyncToDurable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Synced)
	assert.Empty(t, report.Failed)

	for postID := int64(1); postID <= 5; postID++ {
		row, ok := f.summaries.get(postID)
		require.True(t, ok)
		assert.Equal(t, postID, row.LikeCount)
		assert.Equal(t, postID*10, row.ViewCount)
		assert.False(t, row.UpdatedAt.IsZero())
	}

	row, ok := f.summaries.get(6)
	require.True(t, ok)
	assert.Equal(t, int64(2), row.LikeCount)
	assert.Equal(t, int64(60), row.ViewCount)
}

func TestSyncToDurableIsolatesFailures(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	for postID := int64(1); postID <= 4; postID++ {
		f.mr.HSet(counter.LikeKey(postID), counter.LikeCountField, "1")
	}
	f.summaries.rejected[2] = true

	report, err := f.service.SyncToDurable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Synced)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[2], errRowRejected)

	for _, postID := range []int64{1, 3, 4} {
		_, ok := f.summaries.get(postID)
		assert.True(t, ok, "post %d", postID)
	}
}

func TestPullThenPushConverges(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	f.likes.seed(10, 1, 2, 3, 4)
	f.likes.seed(11, 5)
	f.mr.HSet(counter.LikeKey(10), counter.LikeCountField, "1")

	_, err := f.service.SyncFromDurable(ctx)
	require.NoError(t, err)

	_, err = f.service.SyncToDurable(ctx)
	require.NoError(t, err)

	for _, postID := range []int64{10, 11} {
		fast, err := f.service.LikeCount(ctx, postID)
		require.NoError(t, err)

		row, ok := f.summaries.get(postID)
		require.True(t, ok)
		assert.Equal(t, fast, row.LikeCount, "post %d", postID)
	}
}

func TestSyncDirectionsDoNotOverlap(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	for postID := int64(1); postID <= 10; postID++ {
		f.likes.seed(postID, 1, 2)
	}

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.service.SyncFromDurable(ctx)
			} else {
				_, err = f.service.SyncToDurable(ctx)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	_, err := f.service.SyncToDurable(ctx)
	require.NoError(t, err)

	for postID := int64(1); postID <= 10; postID++ {
		row, ok := f.summaries.get(postID)
		require.True(t, ok)
		assert.Equal(t, int64(2), row.LikeCount)
	}
}
