package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// likeSnapshot is a like counter as read before consulting durable state.
type likeSnapshot struct {
	count int64
	found bool
	epoch string
}

// beginLike marks a like write on postID as in flight.
func (s *Service) beginLike(ctx context.Context, postID int64) {
	key := LikeKey(postID)
	args := []string{s.nowMillis(), s.guardMillis()}

	if err := s.scripts.likeBegin.Exec(ctx, s.client, []string{key}, args).Error(); err != nil {
		s.logger.Warn("Failed to guard like write",
			zap.String("key", key),
			zap.Error(err))
	}
}

// abortLike releases the guard of a write whose durable change failed.
func (s *Service) abortLike(ctx context.Context, postID int64) {
	if _, _, err := s.finishLike(ctx, postID, 0); err != nil {
		s.logger.Warn("Failed to release like write guard",
			zap.Int64("postID", postID),
			zap.Error(err))
	}
}

// toggled releases the write guard with the delta of a like or unlike and
// builds the state. A no-op write still releases its guard.
func (s *Service) toggled(ctx context.Context, postID int64, liked, changed bool) (State, error) {
	var delta int64
	if changed {
		delta = 1
		if !liked {
			delta = -1
		}

		if s.opts.OnLikeToggled != nil {
			defer s.opts.OnLikeToggled(ctx, postID)
		}
	}

	count, found, err := s.finishLike(ctx, postID, delta)
	if err != nil {
		s.logger.Warn("Failed to update like counter, serving durable count",
			zap.Int64("postID", postID),
			zap.Error(err))

		count, err = s.durableLikes(ctx, postID)
		if err != nil {
			return State{}, fmt.Errorf("failed to count likes of post %d: %w", postID, err)
		}
		return State{Liked: liked, Count: count}, nil
	}

	if !found {
		count, err = s.LikeCount(ctx, postID)
		if err != nil {
			return State{}, err
		}
	}

	return State{Liked: liked, Count: count}, nil
}

// finishLike ends an in-flight like write and applies delta to the count.
// It reports false when the count is not seeded yet.
func (s *Service) finishLike(ctx context.Context, postID, delta int64) (int64, bool, error) {
	key := LikeKey(postID)
	args := []string{strconv.FormatInt(delta, 10), s.guardMillis()}

	values, err := s.scripts.likeFinish.Exec(ctx, s.client, []string{key}, args).AsIntSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to finish like write on %s: %w", key, err)
	}

	if len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected finish reply for %s: %v", key, values)
	}

	if values[1] == 1 {
		s.clamped(ctx, key, "like", delta)
	}

	return values[0], true, nil
}

// snapshotLikes reads the count and write epoch of each like counter in one
// pipeline of single-key commands.
func (s *Service) snapshotLikes(ctx context.Context, postIDs []int64) (map[int64]likeSnapshot, error) {
	cmds := make(rueidis.Commands, 0, len(postIDs))
	for _, id := range postIDs {
		cmds = append(cmds, s.client.B().Hmget().Key(LikeKey(id)).Field(LikeCountField, epochField).Build())
	}

	snapshots := make(map[int64]likeSnapshot, len(postIDs))
	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		key := LikeKey(postIDs[i])

		fields, err := resp.ToArray()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}

		snapshot := likeSnapshot{epoch: "0"}
		if len(fields) == 2 {
			if !fields[1].IsNil() {
				if epoch, err := fields[1].ToString(); err == nil {
					snapshot.epoch = epoch
				}
			}

			if !fields[0].IsNil() {
				n, err := fields[0].AsInt64()
				if err != nil {
					s.logger.Warn("Unreadable counter value", zap.String("key", key), zap.Error(err))
				} else {
					snapshot.count = s.clampRead(ctx, key, "like", n)
					snapshot.found = true
				}
			}
		}

		snapshots[postIDs[i]] = snapshot
	}

	return snapshots, nil
}

// settleLikes serves durable like counts for posts whose counter is missing
// and seeds those nobody is writing to. Contended posts get the durable count.
func (s *Service) settleLikes(
	ctx context.Context, postIDs []int64, snapshots map[int64]likeSnapshot,
) (map[int64]int64, error) {
	durable, err := s.likes.CountLikes(ctx, postIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to count durable likes: %w", err)
	}

	counts := make(map[int64]int64, len(postIDs))
	for _, id := range postIDs {
		counts[id] = max(durable[id], 0)
	}

	settled, _, failed := s.seedLikes(ctx, postIDs, counts, snapshots, false)
	for id, err := range failed {
		s.logger.Warn("Failed to seed counter", zap.Int64("postID", id), zap.Error(err))
	}

	for id, count := range settled {
		counts[id] = max(count, 0)
	}
	return counts, nil
}

// seedLikes writes like counts unless the post was written to since its
// snapshot. Without overwrite an existing count wins and is returned.
func (s *Service) seedLikes(
	ctx context.Context, postIDs []int64, values map[int64]int64,
	snapshots map[int64]likeSnapshot, overwrite bool,
) (map[int64]int64, []int64, map[int64]error) {
	settled := make(map[int64]int64, len(postIDs))
	failed := make(map[int64]error)
	var contended []int64

	if len(postIDs) == 0 {
		return settled, contended, failed
	}

	mode := "0"
	if overwrite {
		mode = "1"
	}
	now, guard := s.nowMillis(), s.guardMillis()

	execs := make([]rueidis.LuaExec, len(postIDs))
	for i, id := range postIDs {
		epoch := "0"
		if snapshot, ok := snapshots[id]; ok {
			epoch = snapshot.epoch
		}
		execs[i] = rueidis.LuaExec{
			Keys: []string{LikeKey(id)},
			Args: []string{strconv.FormatInt(values[id], 10), epoch, now, guard, mode},
		}
	}

	for i, resp := range s.scripts.likeSeed.ExecMulti(ctx, s.client, execs...) {
		id := postIDs[i]

		reply, err := resp.AsIntSlice()
		switch {
		case err != nil:
			failed[id] = fmt.Errorf("failed to seed %s: %w", LikeKey(id), err)
		case len(reply) != 2:
			failed[id] = fmt.Errorf("unexpected seed reply for %s: %v", LikeKey(id), reply)
		case reply[0] == 1:
			contended = append(contended, id)
		default:
			settled[id] = reply[1]
		}
	}

	return settled, contended, failed
}

func (s *Service) nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func (s *Service) guardMillis() string {
	return strconv.FormatInt(s.opts.WriteGuard.Milliseconds(), 10)
}
