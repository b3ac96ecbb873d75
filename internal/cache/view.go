package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TTLClass names the expiry policy shared by a group of cache entries.
type TTLClass int

const (
	// Permanent entries never expire and are only removed explicitly.
	Permanent TTLClass = iota
	// Short entries back high-mutation views such as feed pages and search.
	Short
	// Medium entries back comment trees, post details and profiles.
	Medium
	// Long entries back per-user trip lists.
	Long
)

// String returns the lowercase name of the class.
func (c TTLClass) String() string {
	switch c {
	case Permanent:
		return "permanent"
	case Short:
		return "short"
	case Medium:
		return "medium"
	case Long:
		return "long"
	default:
		return fmt.Sprintf("ttlclass(%d)", int(c))
	}
}

// initialGeneration is used by versioned namespaces that were never rotated.
const initialGeneration = "0"

// ErrNoLoader is returned by GetOrLoad when called without a loader.
var ErrNoLoader = errors.New("cache: loader is required")

// Codec encodes and decodes view objects for storage.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// SonicCodec serializes views as JSON using sonic.
type SonicCodec[V any] struct{}

// Encode implements Codec.
func (SonicCodec[V]) Encode(v V) ([]byte, error) {
	return sonic.Marshal(v)
}

// Decode implements Codec.
func (SonicCodec[V]) Decode(data []byte) (V, error) {
	var v V
	err := sonic.Unmarshal(data, &v)
	return v, err
}

// Options configures a ViewCache.
type Options[P any, V any] struct {
	// Scope namespaces every key, e.g. "post:detail".
	Scope string
	// Class is the TTL class; TTL is required for every class but Permanent.
	Class TTLClass
	TTL   time.Duration
	// Key renders the discriminator placed after the scope.
	Key func(P) string
	// Versioned namespaces embed a generation token so Rotate can drop every
	// entry in O(1) without scanning.
	Versioned bool
	// Codec defaults to SonicCodec.
	Codec   Codec[V]
	Metrics *Metrics
}

// ViewCache binds a scope, TTL class and codec to a Store. Every read
// failure is logged and reported as a miss.
type ViewCache[P any, V any] struct {
	store     Store
	scope     string
	class     TTLClass
	ttl       time.Duration
	key       func(P) string
	versioned bool
	codec     Codec[V]
	metrics   *Metrics
	group     singleflight.Group
	logger    *zap.Logger
}

// NewViewCache creates a view cache over store.
func NewViewCache[P any, V any](store Store, opts Options[P, V], logger *zap.Logger) *ViewCache[P, V] {
	codec := opts.Codec
	if codec == nil {
		codec = SonicCodec[V]{}
	}

	ttl := opts.TTL
	if opts.Class == Permanent {
		ttl = 0
	}

	return &ViewCache[P, V]{
		store:     store,
		scope:     opts.Scope,
		class:     opts.Class,
		ttl:       ttl,
		key:       opts.Key,
		versioned: opts.Versioned,
		codec:     codec,
		metrics:   opts.Metrics,
		logger:    logger.Named("view_cache").With(zap.String("scope", opts.Scope)),
	}
}

// Scope returns the namespace of this cache.
func (c *ViewCache[P, V]) Scope() string {
	return c.scope
}

// Class returns the TTL class of this cache.
func (c *ViewCache[P, V]) Class() TTLClass {
	return c.class
}

// TTL returns the expiry applied on Put; zero means permanent.
func (c *ViewCache[P, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached view for params and whether it was found.
func (c *ViewCache[P, V]) Get(ctx context.Context, params P) (V, bool) {
	var zero V

	key, err := c.keyFor(ctx, c.key(params))
	if err != nil {
		c.metrics.failure(ctx, c.scope, "generation")
		c.logger.Warn("Failed to resolve cache key", zap.Error(err))
		return zero, false
	}

	return c.get(ctx, key)
}

// Put stores view under params with the cache's TTL.
func (c *ViewCache[P, V]) Put(ctx context.Context, params P, view V) error {
	key, err := c.keyFor(ctx, c.key(params))
	if err != nil {
		return err
	}

	return c.put(ctx, key, view)
}

// GetOrLoad returns the cached view or calls load, stores its result and
// returns it. Concurrent misses on the same key share one load call. Store
// failures never fail the request; loader errors are returned unchanged.
func (c *ViewCache[P, V]) GetOrLoad(ctx context.Context, params P, load func(context.Context) (V, error)) (V, error) {
	var zero V

	if load == nil {
		return zero, ErrNoLoader
	}

	key, err := c.keyFor(ctx, c.key(params))
	if err != nil {
		c.metrics.failure(ctx, c.scope, "generation")
		c.logger.Warn("Failed to resolve cache key, loading uncached", zap.Error(err))
		return load(ctx)
	}

	if view, ok := c.get(ctx, key); ok {
		return view, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		view, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.put(ctx, key, view); err != nil {
			c.logger.Warn("Failed to fill cache after load", zap.String("key", key), zap.Error(err))
		}

		return view, nil
	})
	if err != nil {
		return zero, err
	}

	view, _ := result.(V)

	return view, nil
}

// Evict removes the entry for params.
func (c *ViewCache[P, V]) Evict(ctx context.Context, params P) error {
	return c.EvictKey(ctx, c.key(params))
}

// EvictKey removes the entry with the given discriminator.
func (c *ViewCache[P, V]) EvictKey(ctx context.Context, discriminator string) error {
	key, err := c.keyFor(ctx, discriminator)
	if err != nil {
		return err
	}

	deleted, err := c.store.Delete(ctx, key)
	if err != nil {
		c.metrics.failure(ctx, c.scope, "evict")
		return fmt.Errorf("failed to evict %s: %w", key, err)
	}

	if deleted {
		c.metrics.evicted(ctx, c.scope, 1)
	}

	return nil
}

// EvictAll deletes every key in the namespace by scanning. It is O(n) in the
// number of keys and belongs to admin and background flows.
func (c *ViewCache[P, V]) EvictAll(ctx context.Context) (int, error) {
	deleted, err := c.store.DeleteByPrefix(ctx, c.prefix())
	c.metrics.evicted(ctx, c.scope, deleted)

	if err != nil {
		c.metrics.failure(ctx, c.scope, "evict_all")
		return deleted, fmt.Errorf("failed to evict scope %s: %w", c.scope, err)
	}

	c.logger.Info("Evicted cache scope", zap.Int("deleted", deleted))

	return deleted, nil
}

// Rotate invalidates every entry of a versioned namespace by switching to a
// new generation. Old entries are left to expire. Unversioned caches fall
// back to EvictAll.
func (c *ViewCache[P, V]) Rotate(ctx context.Context) error {
	if !c.versioned {
		_, err := c.EvictAll(ctx)
		return err
	}

	generation := uuid.NewString()
	if err := c.store.Set(ctx, c.generationKey(), []byte(generation), 0); err != nil {
		c.metrics.failure(ctx, c.scope, "rotate")
		return fmt.Errorf("failed to rotate scope %s: %w", c.scope, err)
	}

	c.logger.Debug("Rotated cache generation", zap.String("generation", generation))

	return nil
}

// Stats counts the entries currently stored in the namespace. Versioned
// namespaces only count the live generation; entries of rotated generations
// are unreachable and excluded until they expire.
func (c *ViewCache[P, V]) Stats(ctx context.Context) (int, error) {
	prefix := c.prefix()
	if c.versioned {
		live, err := c.keyFor(ctx, "")
		if err != nil {
			return 0, err
		}
		prefix = live
	}

	count, err := c.store.CountByPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to count scope %s: %w", c.scope, err)
	}

	return count, nil
}

// get reads and decodes key, logging and swallowing every failure.
func (c *ViewCache[P, V]) get(ctx context.Context, key string) (V, bool) {
	var zero V

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.failure(ctx, c.scope, "get")
		c.logger.Warn("Cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return zero, false
	}

	if !found {
		c.metrics.miss(ctx, c.scope)
		return zero, false
	}

	view, err := c.codec.Decode(data)
	if err != nil {
		c.metrics.failure(ctx, c.scope, "decode")
		c.logger.Warn("Corrupt cache payload, treating as miss", zap.String("key", key), zap.Error(err))
		return zero, false
	}

	c.metrics.hit(ctx, c.scope)

	return view, true
}

// put encodes view and writes it under key.
func (c *ViewCache[P, V]) put(ctx context.Context, key string, view V) error {
	data, err := c.codec.Encode(view)
	if err != nil {
		c.metrics.failure(ctx, c.scope, "encode")
		return fmt.Errorf("failed to encode view for %s: %w", key, err)
	}

	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.metrics.failure(ctx, c.scope, "set")
		return err
	}

	return nil
}

// keyFor builds the full key for a discriminator, resolving the current
// generation of versioned namespaces.
func (c *ViewCache[P, V]) keyFor(ctx context.Context, discriminator string) (string, error) {
	if !c.versioned {
		return c.scope + keySeparator + discriminator, nil
	}

	generation := initialGeneration

	data, found, err := c.store.Get(ctx, c.generationKey())
	if err != nil {
		return "", fmt.Errorf("failed to read generation of %s: %w", c.scope, err)
	}

	if found && len(data) > 0 {
		generation = string(data)
	}

	return PlainKey(c.scope, "v", generation) + keySeparator + discriminator, nil
}

func (c *ViewCache[P, V]) generationKey() string {
	return c.scope + keySeparator + "gen"
}

func (c *ViewCache[P, V]) prefix() string {
	return c.scope + keySeparator
}
