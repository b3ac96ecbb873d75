package models

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// summaryBatchSize caps the rows of one summary upsert statement.
const summaryBatchSize = 1000

// CounterModel handles database operations for post counter summaries.
type CounterModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewCounter creates a CounterModel with database access.
func NewCounter(db *bun.DB, logger *zap.Logger) *CounterModel {
	return &CounterModel{
		db:     db,
		logger: logger.Named("db_counter"),
	}
}

// GetSummaries returns summary rows by post. Without IDs it returns every row.
func (m *CounterModel) GetSummaries(ctx context.Context, postIDs ...int64) (map[int64]*types.PostCounter, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.PostCounter, error) {
		var rows []*types.PostCounter

		query := m.db.NewSelect().Model(&rows)
		if len(postIDs) > 0 {
			query = query.Where("post_id IN (?)", bun.In(postIDs))
		}

		if err := query.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get counter summaries: %w", err)
		}

		result := make(map[int64]*types.PostCounter, len(rows))
		for _, row := range rows {
			result[row.PostID] = row
		}
		return result, nil
	})
}

// UpsertSummaries inserts or overwrites the given rows in one transaction.
func (m *CounterModel) UpsertSummaries(ctx context.Context, counters []*types.PostCounter) error {
	if len(counters) == 0 {
		return nil
	}

	now := time.Now()
	for _, row := range counters {
		row.UpdatedAt = now
	}

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		for batch := range slices.Chunk(counters, summaryBatchSize) {
			_, err := tx.NewInsert().
				Model(&batch).
				On("CONFLICT (post_id) DO UPDATE").
				Set("like_count = EXCLUDED.like_count").
				Set("view_count = EXCLUDED.view_count").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to upsert counter summaries: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted counter summaries", zap.Int("count", len(counters)))
	return nil
}
