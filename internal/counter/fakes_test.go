package counter_test

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/tripnest/tripnest/internal/database/types"
)

var errRowRejected = errors.New("row rejected")

type likeKey struct {
	postID int64
	userID int64
}

// memoryLikes is an in-memory LikeRepository keyed by (post, user).
type memoryLikes struct {
	mu   sync.Mutex
	live map[likeKey]bool
	err  error

	// onAdd and onCount run once, outside the lock, after the next AddLike
	// or CountLikes call. They let tests interleave a second request.
	onAdd   func()
	onCount func()
}

// take clears a one-shot hook. The lock must be held.
func take(hook *func()) func() {
	fn := *hook
	*hook = nil
	if fn == nil {
		return func() {}
	}
	return fn
}

func newMemoryLikes() *memoryLikes {
	return &memoryLikes{live: make(map[likeKey]bool)}
}

func (m *memoryLikes) seed(postID int64, userIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, userID := range userIDs {
		m.live[likeKey{postID, userID}] = true
	}
}

func (m *memoryLikes) AddLike(_ context.Context, postID, userID int64) (bool, error) {
	m.mu.Lock()
	hook := take(&m.onAdd)
	changed, err := m.addLocked(postID, userID)
	m.mu.Unlock()

	hook()
	return changed, err
}

func (m *memoryLikes) addLocked(postID, userID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}

	key := likeKey{postID, userID}
	if m.live[key] {
		return false, nil
	}
	m.live[key] = true
	return true, nil
}

func (m *memoryLikes) RemoveLike(_ context.Context, postID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}

	key := likeKey{postID, userID}
	if !m.live[key] {
		return false, nil
	}
	m.live[key] = false
	return true, nil
}

func (m *memoryLikes) IsLiked(_ context.Context, postID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[likeKey{postID, userID}], m.err
}

func (m *memoryLikes) CountLikes(_ context.Context, postIDs ...int64) (map[int64]int64, error) {
	m.mu.Lock()
	hook := take(&m.onCount)
	counts, err := m.countLocked(postIDs)
	m.mu.Unlock()

	hook()
	return counts, err
}

func (m *memoryLikes) countLocked(postIDs []int64) (map[int64]int64, error) {
	if m.err != nil {
		return nil, m.err
	}

	wanted := make(map[int64]bool, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = true
	}

	counts := make(map[int64]int64)
	for key, live := range m.live {
		if !live || (len(postIDs) > 0 && !wanted[key.postID]) {
			continue
		}
		counts[key.postID]++
	}
	return counts, nil
}

// memorySummaries is an in-memory SummaryRepository. Batches containing a
// rejected post fail as a whole.
type memorySummaries struct {
	mu       sync.Mutex
	rows     map[int64]*types.PostCounter
	rejected map[int64]bool
	upserts  int
}

func newMemorySummaries() *memorySummaries {
	return &memorySummaries{
		rows:     make(map[int64]*types.PostCounter),
		rejected: make(map[int64]bool),
	}
}

func (m *memorySummaries) put(postID, likes, views int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[postID] = &types.PostCounter{PostID: postID, LikeCount: likes, ViewCount: views}
}

func (m *memorySummaries) get(postID int64) (types.PostCounter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[postID]
	if !ok {
		return types.PostCounter{}, false
	}
	return *row, true
}

func (m *memorySummaries) GetSummaries(_ context.Context, postIDs ...int64) (map[int64]*types.PostCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(postIDs) == 0 {
		return maps.Clone(m.rows), nil
	}

	result := make(map[int64]*types.PostCounter, len(postIDs))
	for _, id := range postIDs {
		if row, ok := m.rows[id]; ok {
			copied := *row
			result[id] = &copied
		}
	}
	return result, nil
}

func (m *memorySummaries) UpsertSummaries(_ context.Context, counters []*types.PostCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	for _, row := range counters {
		if m.rejected[row.PostID] {
			return errRowRejected
		}
	}

	for _, row := range counters {
		copied := *row
		m.rows[row.PostID] = &copied
	}
	return nil
}
