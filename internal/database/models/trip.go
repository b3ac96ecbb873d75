package models

import (
	"context"
	"fmt"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// TripModel handles read operations on trips.
type TripModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTrip creates a TripModel with database access.
func NewTrip(db *bun.DB, logger *zap.Logger) *TripModel {
	return &TripModel{
		db:     db,
		logger: logger.Named("db_trip"),
	}
}

// GetTripsByIDs retrieves trips by their IDs.
func (m *TripModel) GetTripsByIDs(ctx context.Context, tripIDs []int64) (map[int64]*types.Trip, error) {
	if len(tripIDs) == 0 {
		return map[int64]*types.Trip{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.Trip, error) {
		var trips []*types.Trip
		err := m.db.NewSelect().
			Model(&trips).
			Where("id IN (?)", bun.In(tripIDs)).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get trips: %w", err)
		}

		result := make(map[int64]*types.Trip, len(trips))
		for _, trip := range trips {
			result[trip.ID] = trip
		}
		return result, nil
	})
}
