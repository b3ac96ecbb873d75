package models

import (
	"context"
	"fmt"

	"github.com/tripnest/tripnest/internal/database/dbretry"
	"github.com/tripnest/tripnest/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// UserModel handles read operations on users.
type UserModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewUser creates a UserModel with database access.
func NewUser(db *bun.DB, logger *zap.Logger) *UserModel {
	return &UserModel{
		db:     db,
		logger: logger.Named("db_user"),
	}
}

// GetUsersByIDs retrieves users by their IDs.
func (m *UserModel) GetUsersByIDs(ctx context.Context, userIDs []int64) (map[int64]*types.User, error) {
	if len(userIDs) == 0 {
		return map[int64]*types.User{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.User, error) {
		var users []*types.User
		err := m.db.NewSelect().
			Model(&users).
			Where("id IN (?)", bun.In(userIDs)).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}

		result := make(map[int64]*types.User, len(users))
		for _, user := range users {
			result[user.ID] = user
		}
		return result, nil
	})
}
