// Package invalidation evicts the cached views a mutation may have staled.
// Evictions run synchronously with the write so the next read is fresh.
package invalidation

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType names a kind of mutation.
type EventType string

// Mutation events that stale cached views.
const (
	PostCreated           EventType = "post.created"
	PostUpdated           EventType = "post.updated"
	PostDeleted           EventType = "post.deleted"
	CommentCreated        EventType = "comment.created"
	CommentUpdated        EventType = "comment.updated"
	CommentDeleted        EventType = "comment.deleted"
	LikeToggled           EventType = "like.toggled"
	ProfileUpdated        EventType = "profile.updated"
	TripCreated           EventType = "trip.created"
	TripUpdated           EventType = "trip.updated"
	TripDeleted           EventType = "trip.deleted"
	TripMembershipChanged EventType = "trip.membership_changed"
)

// Event describes one committed mutation. Only the fields relevant to the
// event type are set.
type Event struct {
	Type     EventType
	PostID   int64
	AuthorID int64
	UserID   int64
	TripID   int64
	// UserIDs lists every user whose trip list changed, e.g. the owner and
	// the members added or removed.
	UserIDs []int64
}

// EvictFunc evicts the views staled by an event.
type EvictFunc func(ctx context.Context, event Event) error

type handler struct {
	name  string
	evict EvictFunc
}

// Bus maps event types to ordered eviction handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handler
	logger   *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]handler),
		logger:   logger.Named("invalidation"),
	}
}

// Register appends a named handler for eventType. Handlers run in
// registration order.
func (b *Bus) Register(eventType EventType, name string, evict EvictFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler{name: name, evict: evict})
}

// Handlers returns the handler names registered for eventType in order.
func (b *Bus) Handlers(eventType EventType) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, len(b.handlers[eventType]))
	for i, h := range b.handlers[eventType] {
		names[i] = h.name
	}
	return names
}

// Fire runs every handler of the event in order and returns the number of
// failed handlers. Failures are logged and never stop the remaining handlers;
// the mutation has already committed and stale entries expire with their TTL.
func (b *Bus) Fire(ctx context.Context, event Event) int {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	var failed int
	for _, h := range handlers {
		if err := h.evict(ctx, event); err != nil {
			failed++
			b.logger.Error("Cache eviction failed",
				zap.String("event", string(event.Type)),
				zap.String("handler", h.name),
				zap.Int64("postID", event.PostID),
				zap.Int64("userID", event.UserID),
				zap.Int64("tripID", event.TripID),
				zap.Error(err))
		}
	}

	if len(handlers) > 0 {
		b.logger.Debug("Fired invalidation event",
			zap.String("event", string(event.Type)),
			zap.Int("handlers", len(handlers)),
			zap.Int("failed", failed))
	}

	return failed
}
