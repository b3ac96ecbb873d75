package counter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"github.com/sourcegraph/conc/pool"
	"github.com/tripnest/tripnest/internal/cache"
	"github.com/tripnest/tripnest/internal/database/types"
	"go.uber.org/zap"
)

// SyncReport summarizes one reconciliation run. A failed post never aborts
// the run; it is recorded in Failed while the others still converge.
type SyncReport struct {
	Synced int
	Failed map[int64]error

	mu        sync.Mutex
	succeeded map[int64]struct{}
}

func newSyncReport() *SyncReport {
	return &SyncReport{
		Failed:    make(map[int64]error),
		succeeded: make(map[int64]struct{}),
	}
}

func (r *SyncReport) ok(ids ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.succeeded[id] = struct{}{}
	}
}

func (r *SyncReport) fail(id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[id] = err
}

// finish derives Synced from the posts that never failed.
func (r *SyncReport) finish() *SyncReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Synced = 0
	for id := range r.succeeded {
		if _, failed := r.Failed[id]; !failed {
			r.Synced++
		}
	}
	return r
}

// SyncFromDurable overwrites like counters with the live relation count and
// restores missing view counters from the durable summary. Without IDs it
// covers every post that has live relations, a fast counter or a summary row.
// Concurrent calls for the same target share one run, and runs never overlap
// with SyncToDurable.
func (s *Service) SyncFromDurable(ctx context.Context, postIDs ...int64) (*SyncReport, error) {
	key := "pull"
	if len(postIDs) > 0 {
		key += ":" + cache.Canonical(cache.SortedIDs(postIDs))
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		s.syncMu.Lock()
		defer s.syncMu.Unlock()

		start := time.Now()
		report, err := s.pull(ctx, postIDs)
		report.finish()

		s.metrics.report(ctx, "pull", report)
		s.logger.Info("Pulled counters from durable storage",
			zap.Int("synced", report.Synced),
			zap.Int("failed", len(report.Failed)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))

		return report, err
	})

	report, _ := result.(*SyncReport)
	return report, err
}

// SyncToDurable persists every fast counter into the durable summary. Posts
// missing one of the two counters keep the summarized value for it.
func (s *Service) SyncToDurable(ctx context.Context) (*SyncReport, error) {
	result, err, _ := s.group.Do("push", func() (any, error) {
		s.syncMu.Lock()
		defer s.syncMu.Unlock()

		start := time.Now()
		report, err := s.push(ctx)
		report.finish()

		s.metrics.report(ctx, "push", report)
		s.logger.Info("Pushed counters to durable storage",
			zap.Int("synced", report.Synced),
			zap.Int("failed", len(report.Failed)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))

		return report, err
	})

	report, _ := result.(*SyncReport)
	return report, err
}

// pull implements SyncFromDurable.
func (s *Service) pull(ctx context.Context, postIDs []int64) (*SyncReport, error) {
	report := newSyncReport()

	targets := postIDs
	if len(targets) == 0 {
		var err error
		if targets, err = s.pullTargets(ctx); err != nil {
			return report, err
		}
	}

	for chunk := range slices.Chunk(dedupe(targets), s.opts.ChunkSize) {
		s.pullChunk(ctx, chunk, report)
	}

	return report, nil
}

// pullTargets lists every post with live relations, a like counter or a
// summary row. Like counters whose relations were all removed must drop to zero.
func (s *Service) pullTargets(ctx context.Context) ([]int64, error) {
	durable, err := s.likes.CountLikes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count durable likes: %w", err)
	}

	summaries, err := s.summaries.GetSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load counter summaries: %w", err)
	}

	existing, err := s.scanPostIDs(ctx, likeKeyPrefix)
	if err != nil {
		return nil, err
	}

	targets := append(slices.Collect(maps.Keys(durable)), existing...)
	return append(targets, slices.Collect(maps.Keys(summaries))...), nil
}

// pullChunk overwrites the like counters of one batch and restores its
// missing view counters. Posts written to while their durable count was read
// are retried and reported as contended when they never settle.
func (s *Service) pullChunk(ctx context.Context, chunk []int64, report *SyncReport) {
	failAll := func(ids []int64, err error) {
		for _, id := range ids {
			report.fail(id, err)
		}
	}

	pending := chunk
	for attempt := 0; attempt < seedAttempts && len(pending) > 0; attempt++ {
		snapshots, err := s.snapshotLikes(ctx, pending)
		if err != nil {
			failAll(pending, err)
			pending = nil
			break
		}

		durable, err := s.likes.CountLikes(ctx, pending...)
		if err != nil {
			failAll(pending, fmt.Errorf("failed to count durable likes: %w", err))
			pending = nil
			break
		}

		settled, contended, failed := s.seedLikes(ctx, pending, durable, snapshots, true)
		for id, err := range failed {
			report.fail(id, err)
		}
		report.ok(slices.Collect(maps.Keys(settled))...)

		pending = contended
	}

	for _, id := range pending {
		report.fail(id, fmt.Errorf("%w: %s", ErrSeedContention, LikeKey(id)))
	}

	summaries, err := s.summaries.GetSummaries(ctx, chunk...)
	if err != nil {
		failAll(chunk, fmt.Errorf("failed to load counter summaries: %w", err))
		return
	}

	seeds := make(map[int64]int64, len(chunk))
	for _, id := range chunk {
		var views int64
		if summary, ok := summaries[id]; ok {
			views = summary.ViewCount
		}
		seeds[id] = views
	}

	cmds := make(rueidis.Commands, 0, len(chunk))
	for _, id := range chunk {
		cmds = append(cmds, s.client.B().Set().Key(ViewKey(id)).Value(strconv.FormatInt(seeds[id], 10)).Nx().Build())
	}

	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil && !rueidis.IsRedisNil(err) {
			report.fail(chunk[i], fmt.Errorf("failed to restore view counter: %w", err))
		}
	}
}

// push implements SyncToDurable.
func (s *Service) push(ctx context.Context) (*SyncReport, error) {
	report := newSyncReport()

	likeIDs, err := s.scanPostIDs(ctx, likeKeyPrefix)
	if err != nil {
		return report, err
	}

	viewIDs, err := s.scanPostIDs(ctx, viewKeyPrefix)
	if err != nil {
		return report, err
	}

	ids := dedupe(append(likeIDs, viewIDs...))
	if len(ids) == 0 {
		return report, nil
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.opts.Concurrency)
	for chunk := range slices.Chunk(ids, s.opts.ChunkSize) {
		p.Go(func(ctx context.Context) error {
			s.pushChunk(ctx, chunk, report)
			return nil
		})
	}
	_ = p.Wait()

	return report, nil
}

// pushChunk writes one batch of summaries, retrying post by post when the
// batch write fails so one bad row cannot block the rest.
func (s *Service) pushChunk(ctx context.Context, chunk []int64, report *SyncReport) {
	failAll := func(err error) {
		for _, id := range chunk {
			report.fail(id, err)
		}
	}

	snapshots, err := s.snapshotLikes(ctx, chunk)
	if err != nil {
		failAll(err)
		return
	}

	likes := make(map[int64]int64, len(chunk))
	var missingLikes []int64
	for _, id := range chunk {
		if snapshot := snapshots[id]; snapshot.found {
			likes[id] = snapshot.count
			continue
		}
		missingLikes = append(missingLikes, id)
	}

	views, missingViews, err := s.readViews(ctx, chunk)
	if err != nil {
		failAll(err)
		return
	}

	var existing map[int64]*types.PostCounter
	if missing := dedupe(append(missingLikes, missingViews...)); len(missing) > 0 {
		existing, err = s.summaries.GetSummaries(ctx, missing...)
		if err != nil {
			failAll(fmt.Errorf("failed to load counter summaries: %w", err))
			return
		}
	}

	now := time.Now()
	rows := make([]*types.PostCounter, 0, len(chunk))
	for _, id := range chunk {
		row := &types.PostCounter{
			PostID:    id,
			LikeCount: likes[id],
			ViewCount: views[id],
			UpdatedAt: now,
		}

		if prev, ok := existing[id]; ok {
			if _, found := likes[id]; !found {
				row.LikeCount = prev.LikeCount
			}
			if _, found := views[id]; !found {
				row.ViewCount = prev.ViewCount
			}
		}

		rows = append(rows, row)
	}

	err = s.summaries.UpsertSummaries(ctx, rows)
	if err == nil {
		report.ok(chunk...)
		return
	}

	s.logger.Warn("Failed to write summary batch, retrying per post",
		zap.Int("size", len(rows)),
		zap.Error(err))

	for _, row := range rows {
		if err := s.summaries.UpsertSummaries(ctx, []*types.PostCounter{row}); err != nil {
			report.fail(row.PostID, fmt.Errorf("failed to write summary: %w", err))
			continue
		}
		report.ok(row.PostID)
	}
}

// scanPostIDs lists the posts that have a counter under prefix.
func (s *Service) scanPostIDs(ctx context.Context, prefix string) ([]int64, error) {
	var ids []int64

	err := cache.ScanPrefix(ctx, s.client, prefix, func(keys []string) error {
		for _, key := range keys {
			id, ok := parsePostID(key, prefix)
			if !ok {
				s.logger.Warn("Skipping malformed counter key", zap.String("key", key))
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}

	return ids, nil
}

// dedupe returns the distinct IDs in ascending order.
func dedupe(ids []int64) []int64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
