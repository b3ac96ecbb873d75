package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tripnest/tripnest/internal/cache"
	"github.com/tripnest/tripnest/internal/counter"
	"github.com/tripnest/tripnest/internal/feed"
	"github.com/tripnest/tripnest/internal/invalidation"
	"github.com/tripnest/tripnest/internal/worker/core"
	"go.uber.org/zap"
)

var (
	ErrScopeRequired         = errors.New("SCOPE argument required")
	ErrDiscriminatorRequired = errors.New("SCOPE and DISCRIMINATOR arguments required")
	ErrPostIDRequired        = errors.New("POST_ID argument required")
	ErrEventRequired         = errors.New("EVENT argument required")
	ErrUnknownEvent          = errors.New("unknown invalidation event")
	ErrInvalidID             = errors.New("invalid ID")
)

// Counters is the counter service surface used by the admin tool.
type Counters interface {
	Counts(ctx context.Context, postIDs []int64) (map[int64]counter.Counts, error)
	SyncFromDurable(ctx context.Context, postIDs ...int64) (*counter.SyncReport, error)
	SyncToDurable(ctx context.Context) (*counter.SyncReport, error)
}

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	Registry *cache.Registry
	Counters Counters
	Monitor  *core.Monitor
	Bus      *invalidation.Bus
	Feed     *feed.Aggregator
	Logger   *zap.Logger
	Out      io.Writer
}

// parseIDs parses positive decimal IDs.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidID, part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
